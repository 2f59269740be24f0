// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/sigil-dev/wikiqa/internal/config"
	"github.com/sigil-dev/wikiqa/internal/index"
	"github.com/sigil-dev/wikiqa/internal/provider"
	wikierr "github.com/sigil-dev/wikiqa/pkg/errors"
)

// keyCheckClient is used for provider key validation. Overridden in tests.
var keyCheckClient = &http.Client{Timeout: 10 * time.Second}

func newDoctorCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostics",
		Long:  "Check the configuration, index, provider API keys, server reachability and disk space.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runDoctor(cmd)
		},
	}

	cmd.Flags().String("address", defaultAddress, "server address to check")
	cmd.Flags().Bool("skip-keys", false, "do not contact providers to validate API keys")

	return cmd
}

func (c *cli) runDoctor(cmd *cobra.Command) error {
	w := cmd.OutOrStdout()
	ctx := cmd.Context()
	addr, _ := cmd.Flags().GetString("address")
	skipKeys, _ := cmd.Flags().GetBool("skip-keys")

	cfg, cfgErr := c.config()

	checks := []struct {
		name string
		fn   func() string
	}{
		{"Binary", checkBinary},
		{"Platform", checkPlatform},
		{"Config", func() string { return checkConfig(c.cfgUsed, cfgErr) }},
		{"Index", func() string { return checkIndex(ctx, cfg) }},
		{"Providers", func() string { return checkProviders(ctx, cfg, skipKeys) }},
		{"Server", func() string { return checkServer(ctx, addr) }},
		{"Disk Space", func() string { return checkDiskSpace(dataDir(cfg)) }},
	}

	for _, ch := range checks {
		if _, err := fmt.Fprintf(w, "%-20s %s\n", ch.name+":", ch.fn()); err != nil {
			return err
		}
	}

	return nil
}

func checkBinary() string {
	return fmt.Sprintf("wikiqa %s (%s/%s)", version, runtime.GOOS, runtime.GOARCH)
}

func checkPlatform() string {
	return fmt.Sprintf("%s/%s, Go %s", runtime.GOOS, runtime.GOARCH, runtime.Version())
}

func checkConfig(used string, err error) string {
	if err != nil {
		return fmt.Sprintf("invalid: %s", err)
	}
	if used != "" {
		return fmt.Sprintf("loaded from %s", used)
	}
	return "using defaults (no config file found)"
}

func checkIndex(ctx context.Context, cfg *config.Config) string {
	if cfg == nil {
		return "skipped (config invalid)"
	}
	if cfg.Index.Backend == index.DefaultBackend {
		return fmt.Sprintf("in-memory collection %q, rebuilt on every start", cfg.Index.Collection)
	}

	path := cfg.IndexPath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Sprintf("no index at %s yet (run 'wikiqa load <url>')", path)
	}

	coll, err := openIndex(cfg)
	if err != nil {
		return fmt.Sprintf("error: %s", err)
	}
	defer func() { _ = coll.Close() }()

	n, err := coll.Len(ctx)
	if err != nil {
		return fmt.Sprintf("error: %s", err)
	}
	return fmt.Sprintf("%d chunks in %q at %s (dimension %d)", n, coll.Name(), path, coll.Dimension())
}

func checkProviders(ctx context.Context, cfg *config.Config, skipKeys bool) string {
	if cfg == nil {
		return "skipped (config invalid)"
	}
	if len(cfg.Providers) == 0 {
		return "none configured"
	}

	names := make([]string, 0, len(cfg.Providers))
	for name := range cfg.Providers {
		names = append(names, name)
	}
	sort.Strings(names)

	var out string
	for i, name := range names {
		if i > 0 {
			out += ", "
		}
		out += name + " " + providerState(ctx, name, cfg.Providers[name], skipKeys)
	}
	return out
}

func providerState(ctx context.Context, name string, pc config.ProviderConfig, skipKeys bool) string {
	switch {
	case pc.APIKey == "" && pc.Endpoint != "":
		return "(self-hosted at " + pc.Endpoint + ")"
	case pc.APIKey == "":
		return "(no api_key)"
	case skipKeys:
		return "(key set)"
	}

	err := provider.ValidateKey(ctx, keyCheckClient, provider.KeyCheck{
		Provider: name,
		Key:      pc.APIKey,
		BaseURL:  pc.Endpoint,
	})
	switch {
	case err == nil:
		return "(ok)"
	case wikierr.HasCode(err, wikierr.CodeProviderKeyInvalid):
		return "(key rejected)"
	default:
		return "(unreachable)"
	}
}

func checkServer(ctx context.Context, addr string) string {
	var body struct {
		Status string `json:"status"`
	}
	if err := newAPIClient(addr).getJSON(ctx, "/health", &body); err != nil {
		if wikierr.HasCode(err, wikierr.CodeCLIServerNotRunning) {
			return fmt.Sprintf("not running at %s (run 'wikiqa start')", addr)
		}
		return fmt.Sprintf("error: %s", err)
	}
	return fmt.Sprintf("%s at %s", body.Status, addr)
}

// dataDir is where persistent state lives; the home directory when unknown.
func dataDir(cfg *config.Config) string {
	if cfg != nil && cfg.DataDir != "" {
		if abs, err := filepath.Abs(cfg.DataDir); err == nil {
			return abs
		}
		return cfg.DataDir
	}
	home, _ := os.UserHomeDir()
	return home
}

func checkDiskSpace(dir string) string {
	path := dir
	if _, err := os.Stat(path); os.IsNotExist(err) {
		// Fall back to home directory if data dir doesn't exist yet.
		path, _ = os.UserHomeDir()
	}

	avail, err := availableBytes(path)
	if err != nil {
		return fmt.Sprintf("unable to check: %s", err)
	}
	return formatBytes(avail) + " available"
}

// formatBytes formats a byte count as a human-readable string.
func formatBytes(b uint64) string {
	const (
		gb = 1024 * 1024 * 1024
		mb = 1024 * 1024
	)
	switch {
	case b >= gb:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(gb))
	case b >= mb:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(mb))
	default:
		return fmt.Sprintf("%d bytes", b)
	}
}
