/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

// Command pagecache browses a remote collection through the local cache.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/suparena/pagecache"
	"github.com/suparena/pagecache/config"
	"github.com/suparena/pagecache/logging"
)

// openEngine is replaced in tests
var openEngine = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (*pagecache.Engine, error) {
	return pagecache.Open(ctx, cfg, logger)
}

// cli holds the global flags and the state built from them
type cli struct {
	configPath string
	logLevel   string
	output     string

	logger *zap.Logger
	engine *pagecache.Engine
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "pagecache",
		Short: "Offline-first cache for a remotely paged collection",
		Long: `pagecache mirrors a remote collection into a local store and serves
reads, lookups and searches from it, fetching from the remote only what
the cache does not have.

Configuration is read from --config (YAML), a .env file and PAGECACHE_*
environment variables.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return c.open(cmd.Context())
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return c.close()
		},
	}

	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "path to the YAML configuration file")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVarP(&c.output, "output", "o", "text", "output format (text, json, yaml)")

	root.AddCommand(
		c.refreshCmd(),
		c.browseCmd(),
		c.listCmd(),
		c.getCmd(),
		c.searchCmd(),
		c.statsCmd(),
		versionCmd(c),
	)
	return root
}

func (c *cli) open(ctx context.Context) error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	if c.logLevel != "" {
		cfg.Log.Level = c.logLevel
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	c.logger = logger

	engine, err := openEngine(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open engine: %w", err)
	}
	c.engine = engine
	return nil
}

func (c *cli) close() error {
	var err error
	if c.engine != nil {
		err = c.engine.Close()
		c.engine = nil
	}
	if c.logger != nil {
		_ = c.logger.Sync()
	}
	return err
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
