package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/russellb/corosync/internal/cli/connection"
	"github.com/russellb/corosync/internal/cli/output"
	"github.com/russellb/corosync/internal/core/domain"
	"github.com/russellb/corosync/internal/core/service"
)

// QuorumCommand returns the quorum subcommand group.
func QuorumCommand() *cli.Command {
	return &cli.Command{
		Name:  "quorum",
		Usage: "Quorum state",
		Subcommands: []*cli.Command{
			{
				Name:   "status",
				Usage:  "Show whether this node is quorate and the current ring",
				Action: quorumStatus,
			},
			{
				Name:   "watch",
				Usage:  "Print every quorum notification until interrupted",
				Action: quorumWatch,
			},
			{
				Name:  "wait",
				Usage: "Wait until this node is quorate",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "for",
						Usage: "Give up after this long; zero waits forever",
						Value: time.Minute,
					},
				},
				Action: quorumWait,
			},
		},
	}
}

// quorumView is a quorum notification as printed.
type quorumView struct {
	Quorate bool     `json:"quorate"`
	RingSeq uint64   `json:"ring_seq"`
	Members []uint32 `json:"members"`
}

func (q quorumView) Table(bool) *output.Table {
	t := &output.Table{Headers: []string{"QUORATE", "RING_SEQ", "MEMBERS"}}
	t.AddRow(output.Cell(q.Quorate), fmt.Sprint(q.RingSeq), fmt.Sprint(q.Members))
	return t
}

func viewOf(n service.QuorumNotification) quorumView {
	return quorumView{Quorate: n.Quorate, RingSeq: n.RingSeq, Members: n.NodeIDs}
}

func quorumStatus(c *cli.Context) error {
	e := getEnv(c)
	res, err := e.call(c, domain.ServiceQuorum, service.QuorateRequest())
	if err != nil {
		return err
	}
	quorate, err := service.ParseQuorate(res)
	if err != nil {
		return err
	}

	view := quorumView{Quorate: quorate}
	ctx, cancel := e.requestContext(c)
	defer cancel()
	if n, err := track(ctx, e, c, func(n service.QuorumNotification) bool { return false }); err == nil {
		view = viewOf(n)
	} else if !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return e.print(c, view)
}

func quorumWatch(c *cli.Context) error {
	e := getEnv(c)
	_, err := track(c.Context, e, c, func(n service.QuorumNotification) bool {
		return e.print(c, viewOf(n)) == nil
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func quorumWait(c *cli.Context) error {
	e := getEnv(c)
	ctx := c.Context
	if d := c.Duration("for"); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	n, err := track(ctx, e, c, func(n service.QuorumNotification) bool { return !n.Quorate })
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("not quorate after %s", c.Duration("for"))
	}
	if err != nil {
		return err
	}
	return e.print(c, viewOf(n))
}

// track starts quorum tracking and hands every notification to more
// until it returns false. It returns the last notification seen.
func track(ctx context.Context, e *env, c *cli.Context, more func(service.QuorumNotification) bool) (service.QuorumNotification, error) {
	client, err := e.client(c, domain.ServiceQuorum)
	if err != nil {
		return service.QuorumNotification{}, err
	}
	if _, err := client.Call(ctx, service.TrackStartRequest(service.TrackCurrent)); err != nil {
		return service.QuorumNotification{}, fmt.Errorf("track start: %w", err)
	}
	defer stopTracking(e, client)

	for {
		n, err := nextEvent(ctx, client, service.QuorumResNotification)
		if err != nil {
			return service.QuorumNotification{}, err
		}
		note, err := service.ParseQuorumNotification(n)
		if err != nil {
			return service.QuorumNotification{}, err
		}
		if !more(note) {
			return note, nil
		}
	}
}

func stopTracking(e *env, client *connection.Client) {
	timeout := e.timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	_, _ = client.Call(ctx, service.TrackStopRequest())
}

// nextEvent returns the next event with the given id, skipping others.
func nextEvent(ctx context.Context, client *connection.Client, ids ...int32) ([]byte, error) {
	for {
		select {
		case ev, ok := <-client.Events():
			if !ok {
				return nil, connection.ErrClosed
			}
			h, err := domain.ParseResponseHeader(ev)
			if err != nil {
				return nil, err
			}
			for _, id := range ids {
				if h.ID == id {
					return ev, nil
				}
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
