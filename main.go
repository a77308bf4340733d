package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/mpryc/nbp-mcp-server/internal/tools"
	"github.com/mpryc/nbp-mcp-server/internal/usage"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var version = "0.1.0-dev"

func resolveVersion() string {
	if version != "0.1.0-dev" {
		return version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "(devel)" && info.Main.Version != "" {
		return info.Main.Version
	}
	return version
}

func main() {
	s, err := loadSettings(os.Args[1:])
	if err != nil {
		exitError(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCommand(&s, os.Stdout)
	if err := root.ExecuteContext(ctx); err != nil {
		stop()
		exitError(err)
	}
}

// newRootCommand builds the CLI. Flag defaults come from s, which already
// holds env and config file values; parsed flags overwrite it in place.
func newRootCommand(s *settings, stdout io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "nbp-mcp",
		Short:         "MCP server for NBP exchange rates and gold prices",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), s)
		},
	}
	root.SetOut(stdout)

	pf := root.PersistentFlags()
	pf.String("config", s.ConfigPath, "Config file path (YAML, or NBP_MCP_CONFIG)")
	addAPIFlags(pf, s)
	addLogFlags(pf, s)
	addUsageFlags(pf, &s.Usage)
	addServerFlags(root.Flags(), s)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the MCP tools over stdio or streamable HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), s)
		},
	}
	addServerFlags(serveCmd.Flags(), s)

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), resolveVersion())
		},
	}

	root.AddCommand(
		serveCmd,
		newCallCommand(s),
		newToolsCommand(),
		newStatsCommand(s),
		newConfigCommand(s),
		versionCmd,
	)

	return root
}

func addAPIFlags(fs *pflag.FlagSet, s *settings) {
	fs.StringVar(&s.APIURL, "api-url", s.APIURL, "NBP API base URL (or NBP_API_URL / config)")
	fs.StringVar(&s.UserAgent, "user-agent", s.UserAgent, "User-Agent sent to the NBP API")
	fs.DurationVar(&s.Timeout, "timeout", s.Timeout, "Timeout for each NBP API request")
	fs.IntVar(&s.RangeConcurrency, "range-concurrency", s.RangeConcurrency, "Parallel requests when a history range is split")
}

func addLogFlags(fs *pflag.FlagSet, s *settings) {
	fs.StringVar(&s.LogLevel, "log-level", s.LogLevel, "Log level: debug, info, warn, error")
	fs.StringVar(&s.LogFormat, "log-format", s.LogFormat, "Log format: console or json")
	fs.StringVar(&s.LogOutput, "log-output", s.LogOutput, "Log output: stderr, stdout or a file path")
}

func addServerFlags(fs *pflag.FlagSet, s *settings) {
	fs.StringVar(&s.Transport, "transport", s.Transport, "Transport: stdio or streamable-http")
	fs.StringVar(&s.Host, "host", s.Host, "Listen host for streamable-http")
	fs.IntVar(&s.Port, "port", s.Port, "Listen port for streamable-http")
}

func addUsageFlags(fs *pflag.FlagSet, o *usage.Options) {
	fs.StringVar(&o.Driver, "usage-driver", o.Driver, "Usage ledger driver: sqlite, postgres, mysql, redis, mongo (empty disables)")
	fs.StringVar(&o.DBPath, "usage-db", o.DBPath, "SQLite database path")
	fs.StringVar(&o.DSN, "usage-dsn", o.DSN, "Connection string for postgres, mysql, redis or mongo")
	fs.StringVar(&o.Host, "usage-host", o.Host, "Ledger database host")
	fs.StringVar(&o.Port, "usage-port", o.Port, "Ledger database port")
	fs.StringVar(&o.User, "usage-user", o.User, "Ledger database user")
	fs.StringVar(&o.Password, "usage-password", o.Password, "Ledger database password")
	fs.StringVar(&o.Database, "usage-database", o.Database, "Ledger database name (redis: db number)")
	fs.StringVar(&o.Table, "usage-table", o.Table, "Ledger table name")
	fs.StringVar(&o.Collection, "usage-collection", o.Collection, "Mongo collection name")
	fs.StringVar(&o.Prefix, "usage-prefix", o.Prefix, "Redis key prefix")
	fs.StringVar(&o.TimeZone, "usage-timezone", o.TimeZone, "Time zone used for buckets")
	fs.StringVar(&o.BeginningOfWeek, "usage-week-start", o.BeginningOfWeek, "First day of week for weekly buckets")
	fs.StringVar(&o.Granularities, "usage-granularities", o.Granularities, "Comma separated bucket granularities")
	fs.StringVar(&o.BufferMode, "usage-buffer-mode", o.BufferMode, "Write buffering: off, on or auto")
}

func runServe(ctx context.Context, s *settings) error {
	transport, err := normalizeTransport(s.Transport)
	if err != nil {
		return err
	}
	s.Transport = transport
	if s.Transport == transportStreamableHTTP && (s.Port <= 0 || s.Port > 65535) {
		return fmt.Errorf("invalid port %d", s.Port)
	}
	if s.Transport == transportStdio && strings.EqualFold(strings.TrimSpace(s.LogOutput), "stdout") {
		return errors.New("log output stdout would corrupt the stdio transport; use stderr or a file")
	}

	a, err := newApp(*s)
	if err != nil {
		return err
	}
	defer a.Close()

	return serve(ctx, a, *s)
}

func newConfigCommand(s *settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the config file",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with default values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := strings.TrimSpace(s.ConfigPath)
			if path == "" {
				return errors.New("no config path; pass --config")
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("config %s already exists (use --force to overwrite)", path)
			}
			if err := saveConfigFile(path, defaultFileConfig()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")

	pathCmd := &cobra.Command{
		Use:   "path",
		Short: "Print the config file path in use",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), s.ConfigPath)
		},
	}

	cmd.AddCommand(initCmd, pathCmd)
	return cmd
}

func exitError(err error) {
	var toolErr *tools.Error
	if errors.As(err, &toolErr) {
		fmt.Fprintln(os.Stderr, toolErr.Error())
	} else if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
	}
	os.Exit(1)
}
