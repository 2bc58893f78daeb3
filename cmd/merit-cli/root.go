package main

import (
	"context"
	"fmt"
	"os"

	app "github.com/okian/tinymerit/internal/app"
	"github.com/okian/tinymerit/internal/config"
	"github.com/okian/tinymerit/pkg/logger"
	"github.com/spf13/cobra"
)

// cli carries state shared by subcommands.
type cli struct {
	logLevel string
	svc      *app.Service
	// build overrides service construction in tests.
	build func(ctx context.Context) (*app.Service, error)
}

func newRootCmdWith(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:           "merit-cli",
		Short:         "Pay GitHub contributors from the terminal",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.start(cmd.Context())
		},
	}
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "warn", "log level: debug, info, warn, error")

	root.AddCommand(
		newSearchCmd(c),
		newCheckoutCmd(c),
		newHistoryCmd(c),
		newAccountCmd(c),
		newAPIKeyCmd(c),
	)
	return root
}

// execute runs root and stops the service afterwards, also when the command
// failed. cobra skips post-run hooks on error.
func (c *cli) execute(ctx context.Context, root *cobra.Command) error {
	defer c.stop()
	return root.ExecuteContext(ctx)
}

func (c *cli) stop() {
	if c.svc != nil {
		c.svc.Stop()
		c.svc = nil
	}
}

func (c *cli) start(ctx context.Context) error {
	build := c.build
	if build == nil {
		build = c.fromConfig
	}
	svc, err := build(ctx)
	if err != nil {
		return err
	}
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	c.svc = svc
	return nil
}

func (c *cli) fromConfig(ctx context.Context) (*app.Service, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := logger.InitWithFormat(cfg.LogFormat, os.Stderr); err != nil {
		return nil, err
	}
	if err := logger.SetLevelString(c.logLevel); err != nil {
		return nil, err
	}
	return app.FromConfig(ctx, cfg, logger.Named("cli"))
}

// session returns a throwaway session for one command.
func (c *cli) session() (*app.Session, error) {
	return c.svc.Session("")
}
