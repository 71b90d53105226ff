package types

import (
	"fmt"
	"time"
)

// IST is the exchange timezone; all schedule times are interpreted in it.
var IST = time.FixedZone("IST", 19800)

const DateLayout = "2006-01-02"

// TradingDayConfig holds the wall-clock boundaries of one trading day.
// Times are "HH:MM" in IST and must be strictly increasing.
type TradingDayConfig struct {
	Date          string     `json:"date"`
	Open          string     `json:"open"`
	TakeTrade     string     `json:"take_trade"`
	LastTrade     string     `json:"last_trade"`
	ClosePosition string     `json:"close_position"`
	MarketClose   string     `json:"market_close"`
	CloseDay      string     `json:"close_day"`
	Enabled       bool       `json:"enabled"`
	Note          string     `json:"note,omitempty"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// DefaultDayConfig returns the standard NSE F&O session for date.
func DefaultDayConfig(date string) TradingDayConfig {
	return TradingDayConfig{
		Date:          date,
		Open:          "09:15",
		TakeTrade:     "09:40",
		LastTrade:     "10:15",
		ClosePosition: "15:15",
		MarketClose:   "15:30",
		CloseDay:      "15:45",
		Enabled:       true,
	}
}

func (c TradingDayConfig) Started() bool {
	return c.StartedAt != nil
}

// At resolves one of the config's "HH:MM" fields to an instant on the config date.
func (c TradingDayConfig) At(hhmm string) (time.Time, error) {
	day, err := time.ParseInLocation(DateLayout, c.Date, IST)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", c.Date, err)
	}
	clock, err := time.ParseInLocation("15:04", hhmm, IST)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: %w", hhmm, err)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), clock.Hour(), clock.Minute(), 0, 0, IST), nil
}

// Times returns the six boundaries in order.
func (c TradingDayConfig) Times() (open, takeTrade, lastTrade, closePosition, marketClose, closeDay time.Time, err error) {
	fields := []string{c.Open, c.TakeTrade, c.LastTrade, c.ClosePosition, c.MarketClose, c.CloseDay}
	out := make([]time.Time, len(fields))
	for i, f := range fields {
		if out[i], err = c.At(f); err != nil {
			return
		}
	}
	return out[0], out[1], out[2], out[3], out[4], out[5], nil
}

func (c TradingDayConfig) Validate() error {
	open, take, last, closePos, mktClose, closeDay, err := c.Times()
	if err != nil {
		return err
	}
	ordered := []time.Time{open, take, last, closePos, mktClose, closeDay}
	for i := 1; i < len(ordered); i++ {
		if !ordered[i].After(ordered[i-1]) {
			return fmt.Errorf("day %s: schedule times must be strictly increasing", c.Date)
		}
	}
	return nil
}

type ControlFlag struct {
	Name        string    `json:"name"`
	Value       string    `json:"value"`
	Description string    `json:"description,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// DaySummary is written by the analysis phase.
type DaySummary struct {
	Date      string    `json:"date"`
	PnL       float64   `json:"pnl"`
	LegCount  int       `json:"leg_count"`
	Closed    bool      `json:"closed"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
