package interfaces

import (
	"context"
	"time"

	"mcube-trader/internal/types"
)

// ControlFlagStore is the process-wide named configuration store.
// Typed getters fall back to def when the flag is absent or unparsable.
type ControlFlagStore interface {
	Get(ctx context.Context, name, def string) string
	Set(ctx context.Context, name, value, description string) error
	GetBool(ctx context.Context, name string, def bool) bool
	GetInt(ctx context.Context, name string, def int) int
	GetFloat(ctx context.Context, name string, def float64) float64
	All(ctx context.Context) ([]types.ControlFlag, error)
}

// ProgressStore is an expiring key-value store for run progress and cancel signals.
type ProgressStore interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, key string) error
}

type DayConfigRepository interface {
	GetOrCreate(ctx context.Context, date string) (types.TradingDayConfig, error)
	Save(ctx context.Context, cfg types.TradingDayConfig, override bool) error
	MarkStarted(ctx context.Context, date string, at time.Time) error
	SaveSummary(ctx context.Context, s types.DaySummary) error
	Summary(ctx context.Context, date string) (types.DaySummary, bool, error)
}

type Notifier interface {
	Send(ctx context.Context, message string) bool
}
