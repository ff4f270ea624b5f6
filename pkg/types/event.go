package types

import "time"

// EventSource identifies this pipeline in every published event.
const EventSource = "polymarket-kafka"

// Conviction directions.
const (
	DirectionYes = "yes"
	DirectionNo  = "no"
)

// ConvictionEvent is the wire format published to Kafka and archived
// downstream. The Kafka record key is MarketID; PublishedAt is stamped by
// the publisher, not at construction time.
type ConvictionEvent struct {
	EventID     string     `json:"event_id"`
	Timestamp   time.Time  `json:"timestamp"`
	MarketID    string     `json:"market_id"`
	Question    string     `json:"question"`
	YesPrice    float64    `json:"yes_price"`
	NoPrice     float64    `json:"no_price"`
	Source      string     `json:"source"`
	PublishedAt *time.Time `json:"published_at"`

	ConvictionDirection    string   `json:"conviction_direction"`
	ConvictionMagnitude    float64  `json:"conviction_magnitude"`
	ConvictionMagnitudePct float64  `json:"conviction_magnitude_pct"`
	PreviousYesPrice       *float64 `json:"previous_yes_price"`

	Volume    *float64 `json:"volume"`
	Liquidity *float64 `json:"liquidity"`
}
