// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	wikierr "github.com/sigil-dev/wikiqa/pkg/errors"
)

func newStartCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the wikiqa HTTP server",
		Long:  "Load configuration, wire the scraping, indexing and generation pipeline, and serve the HTTP API.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runStart(cmd)
		},
	}

	cmd.Flags().String("listen", "", "override listen address (host:port)")

	return cmd
}

func (c *cli) runStart(cmd *cobra.Command) error {
	if f := cmd.Flags().Lookup("listen"); f != nil && f.Changed {
		if err := c.v.BindPFlag("networking.listen", f); err != nil {
			return wikierr.Errorf(wikierr.CodeCLISetupFailure, "binding listen flag: %w", err)
		}
	}

	cfg, err := c.config()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := Wire(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			slog.Warn("closing wikiqa", "error", err)
		}
	}()

	if _, err := fmt.Fprintf(cmd.OutOrStdout(), "Starting wikiqa on %s\n", cfg.Networking.Listen); err != nil {
		return err
	}

	return app.Start(ctx)
}
