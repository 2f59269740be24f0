// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newAskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question about the loaded article",
		Long:  "Send a question to the running server and print the answer. Multiple arguments are joined with spaces.",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runAsk,
	}

	cmd.Flags().String("address", defaultAddress, "server address (host:port)")

	return cmd
}

func runAsk(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("address")

	var resp struct {
		Query  string `json:"query"`
		Answer string `json:"answer"`
	}
	req := map[string]string{"query": strings.Join(args, " ")}
	if err := newAPIClient(addr).postJSON(cmd.Context(), "/query", req, &resp); err != nil {
		return err
	}

	_, err := fmt.Fprintln(cmd.OutOrStdout(), resp.Answer)
	return err
}
