package cmd

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/mselser95/polymarket-conviction/internal/app"
	"github.com/mselser95/polymarket-conviction/pkg/config"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var produceCmd = &cobra.Command{
	Use:   "produce",
	Short: "Start the conviction-event producer",
	Long: `Starts the producer process, which will:
1. Load active subscriptions from MongoDB every poll interval
2. Bulk-fetch market snapshots from the Polymarket Gamma API
3. Evaluate the conviction engine for each subscribed market
4. Publish conviction events to Kafka, keyed by market ID`,
	RunE: runProducer,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(produceCmd)
}

func runProducer(cmd *cobra.Command, args []string) error {
	// Best-effort; env vars win over .env
	_ = godotenv.Load()

	cfg, err := config.LoadProducerFromEnv()
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

	producer, err := app.NewProducer(cfg, logger)
	if err != nil {
		return fmt.Errorf("create producer: %w", err)
	}

	err = producer.Run()
	if err != nil {
		return fmt.Errorf("run producer: %w", err)
	}

	return nil
}
