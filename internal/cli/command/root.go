package command

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/russellb/corosync/internal/cli/config"
	"github.com/russellb/corosync/internal/cli/connection"
	"github.com/russellb/corosync/internal/cli/output"
	"github.com/russellb/corosync/internal/core/domain"
	"github.com/russellb/corosync/internal/infra/buildinfo"
	"github.com/russellb/corosync/internal/infra/tlsroots"
)

const envKey = "corosync.env"

// env is the state shared by the commands of one invocation.
type env struct {
	cfg       *config.CLIConfig
	conns     *connection.Manager
	formatter output.Formatter
	timeout   time.Duration
	owned     bool
}

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:     "corosync-cli",
		Usage:    "Query and drive the local corosync daemon",
		Version:  buildinfo.String(),
		Flags:    globalFlags(),
		Commands: Commands(),
		Before:   setup,
		After:    teardown,
	}
}

// Commands returns the top-level commands.
func Commands() []*cli.Command {
	return []*cli.Command{
		StatusCommand(),
		QuorumCommand(),
		CFGCommand(),
		CPGCommand(),
		PLoadCommand(),
		ShellCommand(),
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "CLI configuration file",
			EnvVars: []string{"COROSYNC_CLI_CONFIG"},
		},
		&cli.StringFlag{
			Name:  "socket-dir",
			Usage: "Directory holding the service sockets",
		},
		&cli.StringFlag{
			Name:    "server",
			Aliases: []string{"s"},
			Usage:   "Admin HTTP address (e.g., 127.0.0.1:5480)",
		},
		&cli.StringFlag{
			Name:  "ca-file",
			Usage: "CA bundle verifying the admin server; enables https",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json, yaml",
		},
		&cli.BoolFlag{
			Name:    "wide",
			Aliases: []string{"w"},
			Usage:   "Show wide output (more columns)",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "Timeout of a single request",
			Value: 10 * time.Second,
		},
	}
}

func setup(c *cli.Context) error {
	if _, ok := c.App.Metadata[envKey].(*env); ok {
		return nil
	}

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	cfg = config.Merge(cfg, map[string]string{
		"socket_dir": c.String("socket-dir"),
		"server":     c.String("server"),
		"ca_file":    c.String("ca-file"),
		"output":     c.String("output"),
	})
	format, err := output.ParseFormat(cfg.Output)
	if err != nil {
		return err
	}

	var opts []connection.Option
	if cfg.Retries > 1 {
		opts = append(opts, connection.WithRetry(cfg.Retries, 100*time.Millisecond))
	}
	c.App.Metadata[envKey] = &env{
		cfg:       cfg,
		conns:     connection.NewManager(cfg.SocketDir, opts...),
		formatter: output.NewFormatter(format, c.Bool("wide")),
		timeout:   c.Duration("timeout"),
		owned:     true,
	}
	return nil
}

func teardown(c *cli.Context) error {
	if e, ok := c.App.Metadata[envKey].(*env); ok && e.owned {
		return e.conns.Close()
	}
	return nil
}

func getEnv(c *cli.Context) *env {
	return c.App.Metadata[envKey].(*env)
}

// client returns the connection to svc.
func (e *env) client(c *cli.Context, svc domain.ServiceID) (*connection.Client, error) {
	ctx, cancel := e.requestContext(c)
	defer cancel()
	client, err := e.conns.Get(ctx, svc)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", svc, err)
	}
	return client, nil
}

// call runs one request against svc.
func (e *env) call(c *cli.Context, svc domain.ServiceID, req []byte) ([]byte, error) {
	client, err := e.client(c, svc)
	if err != nil {
		return nil, err
	}
	ctx, cancel := e.requestContext(c)
	defer cancel()
	res, err := client.Call(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", svc, err)
	}
	return res, nil
}

func (e *env) requestContext(c *cli.Context) (context.Context, context.CancelFunc) {
	if e.timeout <= 0 {
		return context.WithCancel(c.Context)
	}
	return context.WithTimeout(c.Context, e.timeout)
}

func (e *env) print(c *cli.Context, data any) error {
	return e.formatter.Format(c.App.Writer, data)
}

func (e *env) tlsConfig() (*tls.Config, error) {
	if e.cfg.CAFile == "" {
		return nil, nil
	}
	pool, err := tlsroots.LoadCAFile(e.cfg.CAFile)
	if err != nil {
		return nil, err
	}
	return &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

// PrintError prints an error message to w, or stderr when w is nil.
func PrintError(w io.Writer, err error) {
	if w == nil {
		w = os.Stderr
	}
	fmt.Fprintf(w, "error: %v\n", err)
}
