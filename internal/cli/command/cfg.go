package command

import (
	"fmt"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/russellb/corosync/internal/cli/output"
	"github.com/russellb/corosync/internal/core/domain"
	"github.com/russellb/corosync/internal/core/service"
)

// CFGCommand returns the cfg subcommand group.
func CFGCommand() *cli.Command {
	return &cli.Command{
		Name:  "cfg",
		Usage: "Node configuration and services",
		Subcommands: []*cli.Command{
			{
				Name:   "ring-status",
				Usage:  "Show the state of every ring interface",
				Action: cfgRingStatus,
			},
			{
				Name:   "local",
				Usage:  "Show the local node id",
				Action: cfgLocal,
			},
			{
				Name:      "node-addrs",
				Usage:     "Show the addresses of a node (default: local)",
				ArgsUsage: "[nodeid]",
				Action:    cfgNodeAddrs,
			},
			{
				Name:      "load",
				Usage:     "Accept new connections for a service again",
				ArgsUsage: "<service>",
				Action:    func(c *cli.Context) error { return cfgServiceLoad(c, false) },
			},
			{
				Name:      "unload",
				Usage:     "Stop accepting new connections for a service",
				ArgsUsage: "<service>",
				Action:    func(c *cli.Context) error { return cfgServiceLoad(c, true) },
			},
		},
	}
}

type ringStatus []service.RingInterface

func (r ringStatus) Table(bool) *output.Table {
	t := &output.Table{Headers: []string{"RING", "INTERFACE", "STATUS"}}
	for i, ring := range r {
		t.AddRow(strconv.Itoa(i), ring.Name, ring.Status)
	}
	return t
}

func cfgRingStatus(c *cli.Context) error {
	e := getEnv(c)
	res, err := e.call(c, domain.ServiceCFG, service.RingStatusRequest())
	if err != nil {
		return err
	}
	rings, err := service.ParseRingStatus(res)
	if err != nil {
		return err
	}
	return e.print(c, ringStatus(rings))
}

func cfgLocal(c *cli.Context) error {
	e := getEnv(c)
	res, err := e.call(c, domain.ServiceCFG, service.LocalNodeRequest())
	if err != nil {
		return err
	}
	id, err := service.ParseLocalNode(res)
	if err != nil {
		return err
	}
	return e.print(c, map[string]any{"nodeid": id})
}

func cfgNodeAddrs(c *cli.Context) error {
	var nodeID uint64
	if c.Args().Present() {
		var err error
		nodeID, err = strconv.ParseUint(c.Args().First(), 10, 32)
		if err != nil {
			return fmt.Errorf("invalid node id %q", c.Args().First())
		}
	}

	e := getEnv(c)
	res, err := e.call(c, domain.ServiceCFG, service.NodeAddrsRequest(uint32(nodeID)))
	if err != nil {
		return err
	}
	addrs, err := service.ParseNodeAddrs(res)
	if err != nil {
		return err
	}

	t := &output.Table{Headers: []string{"ADDRESS"}}
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		t.AddRow(a.String())
		out = append(out, a.String())
	}
	if _, ok := e.formatter.(*output.TableFormatter); ok {
		return e.print(c, t)
	}
	return e.print(c, map[string]any{"addresses": out})
}

func cfgServiceLoad(c *cli.Context, unload bool) error {
	name := c.Args().First()
	if name == "" {
		return fmt.Errorf("service name required")
	}
	if _, ok := domain.ParseService(name); !ok {
		return fmt.Errorf("unknown service %q", name)
	}

	e := getEnv(c)
	if _, err := e.call(c, domain.ServiceCFG, service.ServiceLoadRequest(name, 0, unload)); err != nil {
		return err
	}
	verb := "loaded"
	if unload {
		verb = "unloaded"
	}
	fmt.Fprintf(c.App.Writer, "service %s %s\n", name, verb)
	return nil
}
