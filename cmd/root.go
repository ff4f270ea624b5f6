package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var rootCmd = &cobra.Command{
	Use:   "polymarket-conviction",
	Short: "Polymarket conviction-event pipeline",
	Long: `Polymarket conviction-event pipeline with two long-running processes:

The producer polls the Polymarket Gamma API for subscribed markets,
detects conviction changes (meaningful YES-price moves) and publishes
them to a Kafka topic keyed by market ID.

The ingestor consumes the topic and projects each event into Couchbase
as a per-market latest-state document plus a per-event history document.

Subscriptions are ref-counted documents in MongoDB, managed with the
subscribe and unsubscribe commands.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
