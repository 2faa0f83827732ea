package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/marcelocantos/pipesh/internal/audit"
	"github.com/marcelocantos/pipesh/internal/builtin"
	"github.com/marcelocantos/pipesh/internal/cli"
	"github.com/marcelocantos/pipesh/internal/config"
	"github.com/marcelocantos/pipesh/internal/logging"
	"github.com/marcelocantos/pipesh/internal/mcpserver"
	"github.com/marcelocantos/pipesh/internal/pipeline"
)

// app carries the process streams and the state shared by every command.
type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	exit   func(int)

	cfgPath  string
	logLevel string
	line     string

	cfg    *config.Config
	logger *slog.Logger
	code   int
}

const rootLong = `pipesh reads lines of commands joined by | and runs them as a pipeline.
cd and exit run inside the shell; everything else is launched as a process.`

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:               "pipesh",
		Short:             "A minimal interactive shell that runs pipelines",
		Long:              rootLong,
		Args:              cobra.NoArgs,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return a.setup() },
		RunE: func(cmd *cobra.Command, args []string) error {
			shell := a.shell()
			if cmd.Flags().Changed("command") {
				shell.Exec(cmd.Context(), a.line)
				return nil
			}
			a.code = shell.Run(cmd.Context())
			return nil
		},
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	root.PersistentFlags().StringVar(&a.cfgPath, "config", "", "config file (default "+config.Path()+")")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "diagnostic log level: debug, info, warn or error")
	root.Flags().StringVarP(&a.line, "command", "c", "", "run one line and exit")

	root.AddCommand(a.auditCmd(), a.builtinsCmd(), a.mcpCmd(), a.versionCmd())
	return root
}

func (a *app) auditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the run history",
	}

	verify := &cobra.Command{
		Use:   "verify",
		Short: "Check the run history hash chain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a.code = cli.RunAuditVerify(cmd.OutOrStdout(), a.cfg.Audit.Path)
			return nil
		},
	}

	var n int
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the most recent runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a.code = cli.RunAuditShow(cmd.OutOrStdout(), a.cfg.Audit.Path, n)
			return nil
		},
	}
	show.Flags().IntVarP(&n, "lines", "n", 20, "number of entries to show")

	cmd.AddCommand(verify, show)
	return cmd
}

func (a *app) builtinsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "builtins",
		Short: "List the commands run inside the shell",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a.code = cli.RunBuiltins(a.registry(), cmd.OutOrStdout())
			return nil
		},
	}
}

func (a *app) mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the run_line tool over MCP on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return mcpserver.New(version, a.registry(), a.history(), a.logger).Serve()
		},
	}
}

func (a *app) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "pipesh %s\n", version)
			return nil
		},
	}
}

// setup loads the configuration and builds the diagnostic logger.
func (a *app) setup() error {
	var err error
	if a.cfgPath != "" {
		a.cfg, err = config.LoadFrom(afero.NewOsFs(), a.cfgPath)
	} else {
		a.cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	level := a.cfg.Log.Level
	if a.logLevel != "" {
		level = a.logLevel
	}
	lvl, err := logging.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	a.logger = logging.New(a.stderr, lvl)
	return nil
}

func (a *app) registry() *builtin.Registry {
	reg := builtin.NewRegistry()
	builtin.RegisterAll(reg, a.exit)
	return reg
}

// history opens the run history, or returns nil when it is disabled or
// cannot be opened. Runs proceed either way.
func (a *app) history() *audit.Logger {
	if !a.cfg.Audit.Enabled {
		return nil
	}
	log, err := audit.NewLogger(a.cfg.Audit.Path)
	if err != nil {
		a.logger.Warn("run history disabled", "path", a.cfg.Audit.Path, "err", err)
		return nil
	}
	return log
}

func (a *app) shell() *cli.Shell {
	ex := pipeline.NewExecutor(cli.ChildInput(a.stdin), a.stdout, a.stderr,
		builtin.NewDispatcher(a.registry(), a.stdout), a.logger)
	return &cli.Shell{
		In:       a.stdin,
		Out:      a.stdout,
		Err:      a.stderr,
		Prompt:   a.cfg.Prompt,
		Executor: ex,
		Audit:    a.history(),
		Logger:   a.logger,
	}
}
