package command

import (
	"fmt"
	"sort"

	"github.com/urfave/cli/v2"

	"github.com/russellb/corosync/internal/cli/connection"
	"github.com/russellb/corosync/internal/cli/output"
)

// StatusCommand returns the status command.
func StatusCommand() *cli.Command {
	return &cli.Command{
		Name:   "status",
		Usage:  "Show daemon status from the admin service",
		Action: status,
	}
}

func status(c *cli.Context) error {
	e := getEnv(c)
	tlsConfig, err := e.tlsConfig()
	if err != nil {
		return err
	}

	ctx, cancel := e.requestContext(c)
	defer cancel()
	st, err := connection.NewAdminClient(e.cfg.Server, tlsConfig).Status(ctx)
	if err != nil {
		return fmt.Errorf("status: %w", err)
	}
	return e.print(c, statusDoc(st))
}

// statusDoc is the admin status document.
type statusDoc map[string]any

// Table lists scalar fields, then one row per member and per service
// directive.
func (s statusDoc) Table(wide bool) *output.Table {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	t := &output.Table{Headers: []string{"FIELD", "VALUE"}}
	for _, k := range keys {
		switch k {
		case "members", "flow_control":
			continue
		}
		t.AddRow(k, output.Cell(s[k]))
	}

	members, _ := s["members"].([]any)
	t.AddRow("members", fmt.Sprint(len(members)))
	if wide {
		for _, m := range members {
			mm, _ := m.(map[string]any)
			t.AddRow(fmt.Sprintf("  node %s", output.Cell(mm["nodeid"])),
				fmt.Sprintf("%s %s", output.Cell(mm["name"]), output.Cell(mm["addr"])))
		}
	}

	directives, _ := s["flow_control"].(map[string]any)
	svcs := make([]string, 0, len(directives))
	for svc := range directives {
		svcs = append(svcs, svc)
	}
	sort.Strings(svcs)
	for _, svc := range svcs {
		t.AddRow("flow_control."+svc, output.Cell(directives[svc]))
	}
	return t
}
