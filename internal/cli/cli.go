// Package cli implements timetablectl, the operator tool for migrations,
// token minting and offline timetable checks.
package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-timetable-api/internal/app"
	"github.com/noah-isme/campus-timetable-api/pkg/config"
)

var (
	// Version is set at build time
	Version = "dev"
	// Commit is set at build time
	Commit = "none"
)

// CLI holds the command tree and the lazily opened application.
type CLI struct {
	cfg     *config.Config
	logger  *zap.Logger
	app     *app.App
	root    *cobra.Command
	noColor bool
}

// New builds the command tree for cfg.
func New(cfg *config.Config, logger *zap.Logger) *CLI {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &CLI{cfg: cfg, logger: logger}

	c.root = &cobra.Command{
		Use:           "timetablectl",
		Short:         "Operate the campus timetable",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			if c.noColor {
				DisableColor()
			}
		},
	}
	c.root.PersistentFlags().BoolVar(&c.noColor, "no-color", false, "Disable colored output")

	c.root.AddCommand(c.versionCmd())
	c.root.AddCommand(c.migrateCmd())
	c.root.AddCommand(c.slotsCmd())
	c.root.AddCommand(c.weekCmd())
	c.root.AddCommand(c.checkCmd())
	c.root.AddCommand(c.importCmd())
	c.root.AddCommand(c.tokenCmd())
	return c
}

// WithApp makes the commands use an already opened application.
func (c *CLI) WithApp(a *app.App) *CLI {
	c.app = a
	return c
}

// SetOutput redirects command output, mainly for tests.
func (c *CLI) SetOutput(w io.Writer) {
	c.root.SetOut(w)
	c.root.SetErr(w)
}

// SetArgs overrides os.Args for the next Execute.
func (c *CLI) SetArgs(args []string) {
	c.root.SetArgs(args)
}

// Execute runs the command line.
func (c *CLI) Execute(ctx context.Context) error {
	return c.root.ExecuteContext(ctx)
}

// Close releases the application opened by a command, if any.
func (c *CLI) Close() error {
	if c.app == nil {
		return nil
	}
	return c.app.Close()
}

func (c *CLI) application(ctx context.Context) (*app.App, error) {
	if c.app != nil {
		return c.app, nil
	}
	a, err := app.New(ctx, c.cfg, c.logger)
	if err != nil {
		return nil, fmt.Errorf("opening timetable: %w", err)
	}
	c.app = a
	return a, nil
}

func (c *CLI) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "timetablectl %s (commit: %s)\n", Version, Commit)
		},
	}
}
