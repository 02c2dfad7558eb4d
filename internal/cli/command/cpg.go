package command

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/russellb/corosync/internal/cli/connection"
	"github.com/russellb/corosync/internal/cli/output"
	"github.com/russellb/corosync/internal/core/domain"
	"github.com/russellb/corosync/internal/core/service"
)

// CPGCommand returns the cpg subcommand group.
func CPGCommand() *cli.Command {
	return &cli.Command{
		Name:  "cpg",
		Usage: "Closed process groups",
		Subcommands: []*cli.Command{
			{
				Name:      "members",
				Usage:     "List the members of a group",
				ArgsUsage: "<group>",
				Action:    cpgMembers,
			},
			{
				Name:      "send",
				Usage:     "Join a group, multicast one message and leave",
				ArgsUsage: "<group> <message...>",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "safe",
						Usage: "Request safe instead of agreed delivery",
					},
				},
				Action: cpgSend,
			},
			{
				Name:      "watch",
				Usage:     "Join a group and print its events until interrupted",
				ArgsUsage: "<group>",
				Action:    cpgWatch,
			},
		},
	}
}

type groupMembers []service.GroupMember

func (g groupMembers) Table(bool) *output.Table {
	t := &output.Table{Headers: []string{"NODEID", "PID"}}
	for _, m := range g {
		t.AddRow(fmt.Sprint(m.NodeID), fmt.Sprint(m.PID))
	}
	return t
}

func groupArg(c *cli.Context) (string, error) {
	group := c.Args().First()
	if group == "" {
		return "", fmt.Errorf("group name required")
	}
	if len(group) > service.NameLength {
		return "", fmt.Errorf("group name longer than %d bytes", service.NameLength)
	}
	return group, nil
}

func cpgMembers(c *cli.Context) error {
	group, err := groupArg(c)
	if err != nil {
		return err
	}
	e := getEnv(c)
	res, err := e.call(c, domain.ServiceCPG, service.MembershipRequest(group))
	if err != nil {
		return err
	}
	members, err := service.ParseMembership(res)
	if err != nil {
		return err
	}
	return e.print(c, groupMembers(members))
}

func cpgSend(c *cli.Context) error {
	group, err := groupArg(c)
	if err != nil {
		return err
	}
	if c.Args().Len() < 2 {
		return fmt.Errorf("message required")
	}
	msg := strings.Join(c.Args().Slice()[1:], " ")

	guarantee := domain.GuaranteeAgreed
	if c.Bool("safe") {
		guarantee = domain.GuaranteeSafe
	}

	e := getEnv(c)
	client, leave, err := joinGroup(c, e, group)
	if err != nil {
		return err
	}
	defer leave()

	ctx, cancel := e.requestContext(c)
	defer cancel()
	if err := client.Send(ctx, service.McastRequest(guarantee, []byte(msg))); err != nil {
		return fmt.Errorf("mcast: %w", err)
	}

	// Our own copy arrives once the message is ordered.
	for {
		ev, err := nextEvent(ctx, client, service.CPGResDeliverCallback)
		if err != nil {
			return fmt.Errorf("waiting for delivery: %w", err)
		}
		m, err := service.ParseGroupMessage(ev)
		if err == nil && m.PID == uint32(os.Getpid()) && string(m.Payload) == msg {
			fmt.Fprintf(c.App.Writer, "delivered %d bytes to %s\n", len(m.Payload), group)
			return nil
		}
	}
}

func cpgWatch(c *cli.Context) error {
	group, err := groupArg(c)
	if err != nil {
		return err
	}
	e := getEnv(c)
	client, leave, err := joinGroup(c, e, group)
	if err != nil {
		return err
	}
	defer leave()

	for {
		ev, err := nextEvent(c.Context, client, service.CPGResConfchgCallback, service.CPGResDeliverCallback)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		if err != nil {
			return err
		}
		h, _ := domain.ParseResponseHeader(ev)
		switch h.ID {
		case service.CPGResConfchgCallback:
			ch, err := service.ParseGroupChange(ev)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "confchg %s members=%v joined=%v left=%v\n", ch.Group, ch.Members, ch.Joined, ch.Left)
		case service.CPGResDeliverCallback:
			m, err := service.ParseGroupMessage(ev)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "deliver %s from %d/%d: %q\n", m.Group, m.NodeID, m.PID, m.Payload)
		}
	}
}

// joinGroup joins group with the CLI's pid. The returned func leaves it.
func joinGroup(c *cli.Context, e *env, group string) (*connection.Client, func(), error) {
	pid := uint32(os.Getpid())
	if _, err := e.call(c, domain.ServiceCPG, service.JoinRequest(group, pid)); err != nil {
		return nil, nil, fmt.Errorf("join %s: %w", group, err)
	}
	client, err := e.client(c, domain.ServiceCPG)
	if err != nil {
		return nil, nil, err
	}
	leave := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, _ = client.Call(ctx, service.LeaveRequest(group, pid))
	}
	return client, leave, nil
}
