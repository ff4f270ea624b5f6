package cmd

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/mselser95/polymarket-conviction/internal/app"
	"github.com/mselser95/polymarket-conviction/pkg/config"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Start the conviction-event ingestor",
	Long: `Starts the ingestor process, which will:
1. Consume conviction events from Kafka as part of a consumer group
2. Upsert a latest-state document per market into Couchbase
3. Upsert a history document per event into Couchbase`,
	RunE: runIngestor,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngestor(cmd *cobra.Command, args []string) error {
	// Best-effort; env vars win over .env
	_ = godotenv.Load()

	cfg, err := config.LoadIngestorFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := config.NewLogger()
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	ingestor, err := app.NewIngestor(cfg, logger)
	if err != nil {
		return fmt.Errorf("create ingestor: %w", err)
	}

	err = ingestor.Run()
	if err != nil {
		return fmt.Errorf("run ingestor: %w", err)
	}

	return nil
}
