// Package main implements docqactl, a command-line client for the docqa HTTP API.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// serverURL is the base URL for the docqa HTTP server
	serverURL string
	// userID is sent as X-User-ID
	userID  string
	version = "dev"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "docqactl",
		Short: "CLI for the docqa document Q&A server",
		Long: `docqactl uploads documents to a docqa server, follows their ingestion and
asks questions against them.`,
		Version:      version,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "docqa server URL")
	root.PersistentFlags().StringVar(&userID, "user", "", "user id sent as X-User-ID")

	root.AddCommand(
		newUploadCmd(),
		newAskCmd(),
		newStatusCmd(),
		newJobsCmd(),
		newHistoryCmd(),
		newHealthCmd(),
	)
	return root
}
