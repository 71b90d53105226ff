package engine

import (
	"time"

	"mcube-trader/internal/types"
)

// StateAt derives the day's state from the wall clock alone. A disabled day
// or an off kill switch is DISABLED regardless of time.
//
//	[.., TakeTrade)                SETUP
//	[TakeTrade, LastTrade)         ENTRY_WINDOW
//	[LastTrade, ClosePosition)     MONITORING
//	[ClosePosition, MarketClose)   CLOSING_WINDOW
//	[MarketClose, CloseDay]        ANALYSIS
//	(CloseDay, ..]                 DONE
func StateAt(cfg types.TradingDayConfig, now time.Time, killSwitch bool) (types.DayState, error) {
	if !killSwitch || !cfg.Enabled {
		return types.StateDisabled, nil
	}
	_, take, last, closePos, mktClose, closeDay, err := cfg.Times()
	if err != nil {
		return "", err
	}
	switch {
	case now.Before(take):
		return types.StateSetup, nil
	case now.Before(last):
		return types.StateEntryWindow, nil
	case now.Before(closePos):
		return types.StateMonitoring, nil
	case now.Before(mktClose):
		return types.StateClosingWindow, nil
	case !now.After(closeDay):
		return types.StateAnalysis, nil
	default:
		return types.StateDone, nil
	}
}

// within reports whether from <= now <= until.
func within(now, from, until time.Time) bool {
	return !now.Before(from) && !now.After(until)
}
