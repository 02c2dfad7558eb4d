package command

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/russellb/corosync/internal/core/domain"
	"github.com/russellb/corosync/internal/core/service"
)

// PLoadCommand returns the pload subcommand group.
func PLoadCommand() *cli.Command {
	return &cli.Command{
		Name:  "pload",
		Usage: "Cluster load generator",
		Subcommands: []*cli.Command{
			{
				Name:  "start",
				Usage: "Multicast a burst of messages from this node",
				Flags: []cli.Flag{
					&cli.UintFlag{Name: "count", Value: 1500000, Usage: "Number of messages"},
					&cli.UintFlag{Name: "size", Value: 300, Usage: "Message size in bytes"},
					&cli.UintFlag{Name: "code", Value: 1, Usage: "Tag carried by every message"},
				},
				Action: ploadStart,
			},
		},
	}
}

func ploadStart(c *cli.Context) error {
	count, size := c.Uint("count"), c.Uint("size")
	if size < domain.RequestHeaderSize+4 || size > service.PLoadMaxMessageSize {
		return fmt.Errorf("size must be between %d and %d", domain.RequestHeaderSize+4, service.PLoadMaxMessageSize)
	}

	e := getEnv(c)
	req := service.StartRequest(uint32(c.Uint("code")), uint32(count), uint32(size))
	if _, err := e.call(c, domain.ServicePLoad, req); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "pload started: %d messages of %d bytes\n", count, size)
	return nil
}
