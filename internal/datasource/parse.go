package datasource

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/mselser95/polymarket-conviction/pkg/types"
)

// rawMarket covers the union of the field layouts the API serves. The
// packed layout carries outcomes/outcomePrices (as JSON arrays or
// string-encoded arrays); the tokenized layout carries a tokens array.
type rawMarket struct {
	ConditionID      string          `json:"conditionId"`
	ConditionIDSnake string          `json:"condition_id"`
	ID               json.RawMessage `json:"id"`
	Question         string          `json:"question"`
	Title            string          `json:"title"`
	Outcomes         json.RawMessage `json:"outcomes"`
	OutcomePrices    json.RawMessage `json:"outcomePrices"`
	Tokens           []rawToken      `json:"tokens"`
	VolumeNum        *float64        `json:"volumeNum"`
	Volume           json.RawMessage `json:"volume"`
	LiquidityNum     *float64        `json:"liquidityNum"`
	Liquidity        json.RawMessage `json:"liquidity"`
	Active           *bool           `json:"active"`
	Closed           *bool           `json:"closed"`
}

type rawToken struct {
	Outcome string          `json:"outcome"`
	Price   json.RawMessage `json:"price"`
}

// parseMarket converts one raw API record into a MarketSnapshot. An
// error means the record is skipped; it never aborts the bulk fetch.
func parseMarket(record json.RawMessage) (*types.MarketSnapshot, error) {
	var raw rawMarket
	err := json.Unmarshal(record, &raw)
	if err != nil {
		return nil, fmt.Errorf("decode market record: %w", err)
	}

	marketID := raw.marketID()
	if marketID == "" {
		return nil, fmt.Errorf("market record has no identifier")
	}

	question := raw.Question
	if question == "" {
		question = raw.Title
	}

	yesPrice, noPrice, ok := parsePackedPrices(raw.Outcomes, raw.OutcomePrices)
	if !ok {
		yesPrice, noPrice, ok = parseTokenPrices(raw.Tokens)
	}
	if !ok {
		return nil, fmt.Errorf("market %s: could not extract yes/no prices", marketID)
	}

	active := true
	if raw.Active != nil {
		active = *raw.Active
	}

	closed := false
	if raw.Closed != nil {
		closed = *raw.Closed
	}

	return &types.MarketSnapshot{
		MarketID:  marketID,
		Question:  question,
		YesPrice:  yesPrice,
		NoPrice:   noPrice,
		Volume:    numericField(raw.VolumeNum, raw.Volume),
		Liquidity: numericField(raw.LiquidityNum, raw.Liquidity),
		Active:    active,
		Closed:    closed,
		FetchedAt: time.Now().UTC(),
	}, nil
}

// marketID returns the first present identifier field: conditionId,
// condition_id, then id.
func (r *rawMarket) marketID() string {
	if r.ConditionID != "" {
		return r.ConditionID
	}
	if r.ConditionIDSnake != "" {
		return r.ConditionIDSnake
	}

	var id string
	if err := json.Unmarshal(r.ID, &id); err == nil {
		return id
	}

	var numericID float64
	if err := json.Unmarshal(r.ID, &numericID); err == nil {
		return strconv.FormatFloat(numericID, 'f', -1, 64)
	}

	return ""
}

// parsePackedPrices handles the outcomes/outcomePrices layout: exactly
// two labels and two prices, labels mapped case-insensitively
// (yes/long and no/short).
func parsePackedPrices(outcomesRaw, pricesRaw json.RawMessage) (yesPrice, noPrice float64, ok bool) {
	outcomes, err := decodeStringArray(outcomesRaw)
	if err != nil {
		return 0, 0, false
	}

	prices, err := decodeStringArray(pricesRaw)
	if err != nil {
		return 0, 0, false
	}

	if len(outcomes) != 2 || len(prices) != 2 {
		return 0, 0, false
	}

	var yes, no *float64
	for i, outcome := range outcomes {
		price, err := strconv.ParseFloat(prices[i], 64)
		if err != nil {
			continue
		}

		switch strings.ToLower(outcome) {
		case "yes", "long":
			if yes == nil {
				p := price
				yes = &p
			}
		case "no", "short":
			if no == nil {
				p := price
				no = &p
			}
		}
	}

	if yes == nil || no == nil {
		return 0, 0, false
	}

	return *yes, *no, true
}

// parseTokenPrices handles the tokens-array layout.
func parseTokenPrices(tokens []rawToken) (yesPrice, noPrice float64, ok bool) {
	var yes, no *float64
	for _, token := range tokens {
		price, found := decodeFloat(token.Price)
		if !found {
			continue
		}

		switch strings.ToLower(token.Outcome) {
		case "yes", "long":
			if yes == nil {
				p := price
				yes = &p
			}
		case "no", "short":
			if no == nil {
				p := price
				no = &p
			}
		}
	}

	if yes == nil || no == nil {
		return 0, 0, false
	}

	return *yes, *no, true
}

// decodeStringArray accepts a JSON array of strings/numbers, or the same
// array encoded as a JSON string (the Gamma API serves both).
func decodeStringArray(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("missing field")
	}

	data := raw
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err == nil {
		data = json.RawMessage(encoded)
	}

	var values []json.RawMessage
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("not an array: %w", err)
	}

	out := make([]string, 0, len(values))
	for _, value := range values {
		var s string
		if err := json.Unmarshal(value, &s); err == nil {
			out = append(out, s)
			continue
		}

		var f float64
		if err := json.Unmarshal(value, &f); err != nil {
			return nil, fmt.Errorf("element is neither string nor number")
		}
		out = append(out, strconv.FormatFloat(f, 'f', -1, 64))
	}

	return out, nil
}

// decodeFloat accepts a JSON number or a quoted numeric string.
func decodeFloat(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 {
		return 0, false
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		parsed, err := strconv.ParseFloat(s, 64)
		if err == nil {
			return parsed, true
		}
	}

	return 0, false
}

// numericField prefers the numeric-suffixed field, falling back to the
// plain field parsed as a float; nil when neither is usable.
func numericField(numeric *float64, plain json.RawMessage) *float64 {
	if numeric != nil {
		return numeric
	}

	value, ok := decodeFloat(plain)
	if !ok {
		return nil
	}

	return &value
}
