package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "countergraph:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "countergraph",
		Short: "GraphQL server over a shared counter",
		Long: `countergraph serves queries, mutations and live subscriptions against a
single shared counter over HTTP and WebSocket, and ships a small client
for talking to a running server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newSchemaCmd(), newQueryCmd(), newWatchCmd())
	return root
}
