// Package conviction implements the per-market threshold engine that
// decides whether a new YES-price observation is an economically
// meaningful shift.
package conviction

import (
	"math"
	"time"

	"github.com/mselser95/polymarket-conviction/pkg/types"
)

// Default thresholds, used when a subscription carries no overrides.
const (
	// DefaultAbsThreshold fires on a 10 percentage point absolute move.
	DefaultAbsThreshold = 0.10
	// DefaultPctThreshold fires on a 20% move relative to the baseline.
	DefaultPctThreshold = 0.20
)

// State is the per-market tracking state kept between polls. It is owned
// by the orchestrator and must only be mutated through Evaluate.
type State struct {
	LastYesPrice      *float64
	LastEventYesPrice *float64
	LastEventAt       *time.Time
}

// Change describes a detected conviction shift.
type Change struct {
	Direction        string
	Magnitude        float64
	MagnitudePct     float64
	PreviousYesPrice float64
	DetectedAt       time.Time
}

// Thresholds resolves the absolute and percentage thresholds for a
// subscription: per-subscription overrides win, otherwise the defaults.
func Thresholds(sub *types.Subscription) (absThreshold, pctThreshold float64) {
	absThreshold = DefaultAbsThreshold
	if sub.ConvictionThreshold != nil && *sub.ConvictionThreshold > 0 {
		absThreshold = *sub.ConvictionThreshold
	}

	pctThreshold = DefaultPctThreshold
	if sub.ConvictionThresholdPct != nil && *sub.ConvictionThresholdPct > 0 {
		pctThreshold = *sub.ConvictionThresholdPct
	}

	return absThreshold, pctThreshold
}

// Evaluate compares the snapshot's YES price against the state's baseline
// and returns a Change when either threshold is crossed, or nil otherwise.
//
// The first observation for a market only records the baseline. The
// baseline advances to the current price on every call, fire or not, so
// conviction is always measured against the previous poll rather than the
// previous event.
func Evaluate(sub *types.Subscription, snapshot *types.MarketSnapshot, state *State) *Change {
	current := snapshot.YesPrice
	previous := state.LastYesPrice

	if previous == nil {
		state.LastYesPrice = &current
		return nil
	}

	absThreshold, pctThreshold := Thresholds(sub)

	changeAbs := math.Abs(current - *previous)

	var changePct float64
	switch {
	case *previous == 0 && changeAbs > 0:
		changePct = math.Inf(1)
	case *previous == 0:
		changePct = 0
	default:
		changePct = changeAbs / *previous
	}

	if changeAbs < absThreshold && changePct < pctThreshold {
		state.LastYesPrice = &current
		return nil
	}

	direction := types.DirectionNo
	if current > *previous {
		direction = types.DirectionYes
	}

	detectedAt := time.Now().UTC()
	change := &Change{
		Direction:        direction,
		Magnitude:        changeAbs,
		MagnitudePct:     changePct,
		PreviousYesPrice: *previous,
		DetectedAt:       detectedAt,
	}

	state.LastYesPrice = &current
	state.LastEventYesPrice = &current
	state.LastEventAt = &detectedAt

	return change
}
