package command

import (
	"github.com/urfave/cli/v2"

	"github.com/russellb/corosync/internal/cli/repl"
)

// ShellCommand returns the interactive shell command.
func ShellCommand() *cli.Command {
	return &cli.Command{
		Name:   "shell",
		Usage:  "Run commands interactively",
		Action: shell,
	}
}

func shell(c *cli.Context) error {
	var names []string
	for _, cmd := range Commands() {
		if cmd.Name != "shell" {
			names = append(names, cmd.Name)
		}
	}

	parent := c.App
	exec := func(args []string) error {
		if len(args) > 0 && args[0] == "shell" {
			return nil
		}
		sub := App()
		sub.Writer, sub.ErrWriter = parent.Writer, parent.ErrWriter
		sub.Metadata = map[string]any{envKey: inherited(getEnv(c))}
		sub.ExitErrHandler = func(*cli.Context, error) {}
		return sub.RunContext(c.Context, append([]string{parent.Name}, args...))
	}

	return repl.New(exec, names, repl.WithIO(parent.Reader, parent.Writer)).Run()
}

// inherited shares e with a nested app that must not close its
// connections.
func inherited(e *env) *env {
	cp := *e
	cp.owned = false
	return &cp
}
