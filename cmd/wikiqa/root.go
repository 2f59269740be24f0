// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sigil-dev/wikiqa/internal/config"
	wikierr "github.com/sigil-dev/wikiqa/pkg/errors"
)

// cli carries state shared by every subcommand of one root command.
type cli struct {
	v       *viper.Viper
	cfgUsed string
}

// NewRootCmd creates the root wikiqa command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	c := &cli{v: viper.New()}

	root := &cobra.Command{
		Use:           "wikiqa",
		Short:         "wikiqa answers questions about a Wikipedia article",
		Long:          "wikiqa scrapes a Wikipedia article, indexes its paragraphs as embeddings, and answers questions from the closest passages.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.init(cmd)
		},
	}

	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().String("data-dir", "", "path to data directory")
	root.PersistentFlags().String("env-file", ".env", "dotenv file loaded before reading configuration")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newInitCmd(),
		newStartCmd(c),
		newLoadCmd(),
		newAskCmd(),
		newStatusCmd(),
		newSecretCmd(),
		newDoctorCmd(c),
		newVersionCmd(),
	)

	return root
}

// init installs the logger and resolves configuration with the standard
// precedence: flag > env > file > defaults.
func (c *cli) init(cmd *cobra.Command) error {
	verbose, _ := cmd.Flags().GetBool("verbose")
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))

	envFile, _ := cmd.Flags().GetString("env-file")
	if err := config.LoadDotEnv(envFile); err != nil {
		return err
	}

	config.SetDefaults(c.v)
	config.SetupEnv(c.v)

	cfgFile, _ := cmd.Flags().GetString("config")
	used, err := config.ReadFile(c.v, cfgFile)
	if err != nil {
		return err
	}
	c.cfgUsed = used
	config.WarnInsecurePermissions(used)

	if f := cmd.Flags().Lookup("data-dir"); f != nil && f.Changed {
		if err := c.v.BindPFlag("data_dir", f); err != nil {
			return wikierr.Errorf(wikierr.CodeCLISetupFailure, "binding data-dir flag: %w", err)
		}
	}
	return nil
}

// config resolves keyring references and validates the merged settings.
func (c *cli) config() (*config.Config, error) {
	return config.FromViper(c.v, secretStoreFactory())
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
