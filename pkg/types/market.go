package types

import "time"

// MarketSnapshot is a point-in-time observation of a Polymarket market,
// reduced to the fields conviction detection and event building need.
type MarketSnapshot struct {
	MarketID  string
	Question  string
	YesPrice  float64
	NoPrice   float64
	Volume    *float64
	Liquidity *float64
	Active    bool
	Closed    bool
	FetchedAt time.Time
}

// Subscription is a ref-counted declaration of interest in a market.
// It is stored in MongoDB and mutated via atomic $inc, so ref_count may
// transiently be zero or negative; only ref_count > 0 counts as active.
type Subscription struct {
	MarketID  string     `bson:"market_id"`
	Slug      string     `bson:"slug,omitempty"`
	RefCount  int        `bson:"ref_count"`
	CreatedAt *time.Time `bson:"created_at,omitempty"`
	UpdatedAt *time.Time `bson:"updated_at,omitempty"`

	// Optional per-market overrides for the conviction thresholds.
	ConvictionThreshold    *float64 `bson:"conviction_threshold,omitempty"`
	ConvictionThresholdPct *float64 `bson:"conviction_threshold_pct,omitempty"`
}

// IsActive reports whether the subscription should be polled.
func (s *Subscription) IsActive() bool {
	return s.RefCount > 0
}
