package repl

import (
	"sort"
	"strings"
)

// Completer suggests commands for a typed prefix.
type Completer struct {
	commands []string
}

// NewCompleter creates a completer over commands plus the shell
// built-ins.
func NewCompleter(commands []string) *Completer {
	all := append([]string{"help", "exit", "quit"}, commands...)
	sort.Strings(all)
	return &Completer{commands: all}
}

// Commands returns every known command in sorted order.
func (c *Completer) Commands() []string {
	return append([]string(nil), c.commands...)
}

// Complete returns the commands starting with prefix.
func (c *Completer) Complete(prefix string) []string {
	var suggestions []string
	for _, cmd := range c.commands {
		if strings.HasPrefix(cmd, prefix) {
			suggestions = append(suggestions, cmd)
		}
	}
	return suggestions
}
