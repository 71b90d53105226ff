package interfaces

import (
	"context"

	"mcube-trader/internal/types"
)

type EodSummarizer interface {
	// SummarizeDay writes the day's CSV report and returns its path.
	SummarizeDay(ctx context.Context, s types.DaySummary) (csvPath string, err error)
}
