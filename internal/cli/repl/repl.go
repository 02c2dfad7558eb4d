package repl

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Exec runs one command line split into arguments.
type Exec func(args []string) error

// REPL is the read-eval-print loop.
type REPL struct {
	input     io.Reader
	output    io.Writer
	prompt    string
	exec      Exec
	completer *Completer
	history   *History
}

// Option configures a REPL.
type Option func(*REPL)

// WithIO sets the input and output streams.
func WithIO(in io.Reader, out io.Writer) Option {
	return func(r *REPL) {
		r.input, r.output = in, out
	}
}

// WithHistory replaces the history store.
func WithHistory(h *History) Option {
	return func(r *REPL) { r.history = h }
}

// New creates a REPL that runs lines with exec. Commands lists the
// top-level commands for completion and the help line.
func New(exec Exec, commands []string, opts ...Option) *REPL {
	r := &REPL{
		prompt:    "corosync> ",
		exec:      exec,
		completer: NewCompleter(commands),
		history:   NewHistory(""),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run reads lines until EOF or exit. Command errors are printed and the
// loop continues.
func (r *REPL) Run() error {
	_ = r.history.Load()
	defer r.history.Save()

	scanner := bufio.NewScanner(r.input)
	for {
		fmt.Fprint(r.output, r.prompt)
		if !scanner.Scan() {
			fmt.Fprintln(r.output)
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		r.history.Add(line)

		switch line {
		case "exit", "quit":
			return nil
		case "help":
			fmt.Fprintf(r.output, "commands: %s\n", strings.Join(r.completer.Commands(), ", "))
			continue
		}

		args, err := Split(line)
		if err == nil {
			err = r.exec(args)
		}
		if err != nil {
			fmt.Fprintf(r.output, "error: %v\n", err)
		}
	}
}

// ErrUnterminatedQuote is returned by Split for an open quote.
var ErrUnterminatedQuote = errors.New("unterminated quote")

// Split breaks a line into arguments on white space. Single and double
// quotes group words; a backslash escapes the next character outside
// single quotes.
func Split(line string) ([]string, error) {
	var (
		args    []string
		cur     strings.Builder
		inArg   bool
		quote   rune
		escaped bool
	)
	for _, c := range line {
		switch {
		case escaped:
			cur.WriteRune(c)
			escaped = false
		case c == '\\' && quote != '\'':
			escaped, inArg = true, true
		case quote != 0:
			if c == quote {
				quote = 0
			} else {
				cur.WriteRune(c)
			}
		case c == '"' || c == '\'':
			quote, inArg = c, true
		case c == ' ' || c == '\t':
			if inArg {
				args = append(args, cur.String())
				cur.Reset()
				inArg = false
			}
		default:
			cur.WriteRune(c)
			inArg = true
		}
	}
	if quote != 0 || escaped {
		return nil, ErrUnterminatedQuote
	}
	if inArg {
		args = append(args, cur.String())
	}
	return args, nil
}
