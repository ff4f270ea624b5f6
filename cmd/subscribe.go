package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/mselser95/polymarket-conviction/internal/datasource"
	"github.com/mselser95/polymarket-conviction/internal/subscriptions"
	"github.com/mselser95/polymarket-conviction/pkg/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

//nolint:gochecknoglobals // Cobra boilerplate
var subscribeCmd = &cobra.Command{
	Use:   "subscribe [market-id]",
	Short: "Subscribe to a market's conviction events",
	Long: `Increments the ref-count of a market subscription in MongoDB,
creating the subscription document if it does not exist.

The market is identified either by its market ID argument or by its
Gamma slug via --slug, which is resolved through the Gamma API.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSubscribe,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(subscribeCmd)
	subscribeCmd.Flags().StringP("slug", "s", "", "Gamma market slug to resolve into a market ID")
	subscribeCmd.Flags().Float64("threshold", 0, "Absolute YES-price move threshold override")
	subscribeCmd.Flags().Float64("threshold-pct", 0, "Relative YES-price move threshold override")
}

func runSubscribe(cmd *cobra.Command, args []string) error {
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

	slug, _ := cmd.Flags().GetString("slug")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	marketID, err := resolveMarketID(ctx, args, slug, logger)
	if err != nil {
		return err
	}

	opts := subscriptions.SubscribeOptions{Slug: slug}
	if cmd.Flags().Changed("threshold") {
		threshold, _ := cmd.Flags().GetFloat64("threshold")
		opts.Threshold = &threshold
	}
	if cmd.Flags().Changed("threshold-pct") {
		thresholdPct, _ := cmd.Flags().GetFloat64("threshold-pct")
		opts.ThresholdPct = &thresholdPct
	}

	store, err := subscriptions.NewStore(ctx, mongoCfg, logger)
	if err != nil {
		return fmt.Errorf("connect subscription store: %w", err)
	}
	defer func() {
		_ = store.Close(context.Background())
	}()

	err = store.Subscribe(ctx, marketID, opts)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	fmt.Printf("Subscribed to market %s\n", marketID)

	return nil
}

// resolveMarketID returns the explicit market ID argument, or resolves
// the slug through the Gamma API when only a slug was given.
func resolveMarketID(ctx context.Context, args []string, slug string, logger *zap.Logger) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}

	if slug == "" {
		return "", fmt.Errorf("either a market ID argument or --slug is required")
	}

	polyCfg := config.LoadPolymarketFromEnv()
	source := datasource.NewClient(&datasource.Config{
		BaseURL:        polyCfg.BaseURL,
		RequestTimeout: polyCfg.RequestTimeout,
		RateLimitDelay: polyCfg.RateLimitDelay,
		MaxMarkets:     polyCfg.MaxMarkets,
		Logger:         logger,
	})
	defer source.Close()

	snapshot, err := source.FetchBySlug(ctx, slug)
	if err != nil {
		return "", fmt.Errorf("resolve slug %q: %w", slug, err)
	}
	if snapshot == nil {
		return "", fmt.Errorf("no market found for slug %q", slug)
	}

	return snapshot.MarketID, nil
}
