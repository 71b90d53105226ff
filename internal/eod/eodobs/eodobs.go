package eodobs

import (
	"context"

	"mcube-trader/internal/interfaces"
	"mcube-trader/internal/logger"
	"mcube-trader/internal/trace"
	"mcube-trader/internal/types"
)

type observableEodSummarizer struct {
	summarizer interfaces.EodSummarizer
}

var _ interfaces.EodSummarizer = (*observableEodSummarizer)(nil)

func Wrap(summarizer interfaces.EodSummarizer) interfaces.EodSummarizer {
	return &observableEodSummarizer{
		summarizer: summarizer,
	}
}

func (oes *observableEodSummarizer) SummarizeDay(ctx context.Context, s types.DaySummary) (string, error) {
	ctx, span := trace.StartSpan(ctx, "eod.SummarizeDay")
	defer span.End()

	logger.InfoSkip(ctx, 1, "Starting EOD summary generation", "date", s.Date)

	csvPath, err := oes.summarizer.SummarizeDay(ctx, s)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "EOD summary generation failed", err, "date", s.Date)
		return "", err
	}

	logger.InfoSkip(ctx, 1, "EOD summary generated successfully",
		"date", s.Date,
		"csv_path", csvPath,
		"pnl", s.PnL,
	)
	return csvPath, nil
}
