// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newLoadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load <url>",
		Short: "Load a Wikipedia article into the running server",
		Long:  "Ask the running server to scrape, chunk, embed and index the article at url, replacing anything loaded before.",
		Args:  cobra.ExactArgs(1),
		RunE:  runLoad,
	}

	cmd.Flags().String("address", defaultAddress, "server address (host:port)")

	return cmd
}

func runLoad(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("address")

	var resp struct {
		Message        string `json:"message"`
		NumberOfChunks int    `json:"number_of_chunks"`
		Title          string `json:"title"`
	}
	req := map[string]string{"url": args[0]}
	if err := newAPIClient(addr).postJSON(cmd.Context(), "/load", req, &resp); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if resp.Title != "" {
		_, err := fmt.Fprintf(out, "%s (%q, %d chunks)\n", resp.Message, resp.Title, resp.NumberOfChunks)
		return err
	}
	_, err := fmt.Fprintf(out, "%s (%d chunks)\n", resp.Message, resp.NumberOfChunks)
	return err
}
