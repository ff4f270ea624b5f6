package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/mselser95/polymarket-conviction/internal/subscriptions"
	"github.com/mselser95/polymarket-conviction/pkg/config"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var unsubscribeCmd = &cobra.Command{
	Use:   "unsubscribe <market-id>",
	Short: "Unsubscribe from a market's conviction events",
	Long: `Decrements the ref-count of a market subscription in MongoDB.
The producer stops tracking the market once its ref-count reaches zero.`,
	Args: cobra.ExactArgs(1),
	RunE: runUnsubscribe,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(unsubscribeCmd)
}

func runUnsubscribe(cmd *cobra.Command, args []string) error {
	// Best-effort; env vars win over .env
	_ = godotenv.Load()

	mongoCfg, err := config.LoadMongoFromEnv()
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

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := subscriptions.NewStore(ctx, mongoCfg, logger)
	if err != nil {
		return fmt.Errorf("connect subscription store: %w", err)
	}
	defer func() {
		_ = store.Close(context.Background())
	}()

	marketID := args[0]

	err = store.Unsubscribe(ctx, marketID)
	if err != nil {
		return fmt.Errorf("unsubscribe: %w", err)
	}

	fmt.Printf("Unsubscribed from market %s\n", marketID)

	return nil
}
