// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/sigil-dev/wikiqa/internal/server"
	wikierr "github.com/sigil-dev/wikiqa/pkg/errors"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show server status",
		Long:  "Query the running server for the loaded article, index size and provider health.",
		RunE:  runStatus,
	}

	cmd.Flags().String("address", defaultAddress, "server address (host:port)")

	return cmd
}

func runStatus(cmd *cobra.Command, _ []string) error {
	addr, _ := cmd.Flags().GetString("address")
	out := cmd.OutOrStdout()

	var st server.StatusBody
	if err := newAPIClient(addr).getJSON(cmd.Context(), "/api/v1/status", &st); err != nil {
		if wikierr.HasCode(err, wikierr.CodeCLIServerNotRunning) {
			_, _ = fmt.Fprintf(out, "Server at %s is not running (connection refused)\n", addr)
			return nil
		}
		return err
	}

	printStatus(out, addr, &st)
	return nil
}

func printStatus(w io.Writer, addr string, st *server.StatusBody) {
	_, _ = fmt.Fprintf(w, "Server:      %s\n", addr)
	_, _ = fmt.Fprintf(w, "Collection:  %s (%d chunks, dim %d)\n", st.Collection, st.Documents, st.Dimension)
	_, _ = fmt.Fprintf(w, "Embedding:   %s\n", st.EmbeddingModel)
	_, _ = fmt.Fprintf(w, "Generation:  %s\n", st.GenerationModel)
	if st.SourceURL == "" {
		_, _ = fmt.Fprintln(w, "Article:     none loaded")
	} else {
		_, _ = fmt.Fprintf(w, "Article:     %s <%s>\n", st.SourceTitle, st.SourceURL)
		if st.LoadedAt != nil {
			_, _ = fmt.Fprintf(w, "Loaded at:   %s\n", st.LoadedAt.Local().Format(time.RFC3339))
		}
	}
	for _, p := range st.Providers {
		state := "available"
		if !p.Available {
			state = fmt.Sprintf("unavailable (%d failures)", p.FailureCount)
		}
		_, _ = fmt.Fprintf(w, "Provider:    %s %s\n", p.Provider, state)
	}
}
