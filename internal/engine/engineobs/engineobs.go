package engineobs

import (
	"context"
	"time"

	"mcube-trader/internal/interfaces"
	"mcube-trader/internal/logger"
	"mcube-trader/internal/trace"
	"mcube-trader/internal/types"
)

type observableScheduler struct {
	scheduler interfaces.Scheduler
}

var _ interfaces.Scheduler = (*observableScheduler)(nil)

func Wrap(s interfaces.Scheduler) interfaces.Scheduler {
	return &observableScheduler{
		scheduler: s,
	}
}

func (o *observableScheduler) InstallDailyJob(ctx context.Context) error {
	ctx, span := trace.StartSpan(ctx, "scheduler.InstallDailyJob")
	defer span.End()

	if err := o.scheduler.InstallDailyJob(ctx); err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Daily job installation failed", err)
		return err
	}
	return nil
}

func (o *observableScheduler) RunSetupPhase(ctx context.Context, date time.Time) types.PhaseResult {
	return o.observe(ctx, "scheduler.RunSetupPhase", func(ctx context.Context) types.PhaseResult {
		return o.scheduler.RunSetupPhase(ctx, date)
	})
}

func (o *observableScheduler) RunEntryPhase(ctx context.Context) types.PhaseResult {
	return o.observe(ctx, "scheduler.RunEntryPhase", o.scheduler.RunEntryPhase)
}

func (o *observableScheduler) RunMonitoringPhase(ctx context.Context) types.PhaseResult {
	return o.observe(ctx, "scheduler.RunMonitoringPhase", o.scheduler.RunMonitoringPhase)
}

func (o *observableScheduler) RunClosingPhase(ctx context.Context) types.PhaseResult {
	return o.observe(ctx, "scheduler.RunClosingPhase", o.scheduler.RunClosingPhase)
}

func (o *observableScheduler) RunAnalysisPhase(ctx context.Context) types.PhaseResult {
	return o.observe(ctx, "scheduler.RunAnalysisPhase", o.scheduler.RunAnalysisPhase)
}

func (o *observableScheduler) observe(ctx context.Context, name string, fn func(context.Context) types.PhaseResult) types.PhaseResult {
	ctx, span := trace.StartSpan(ctx, name)
	defer span.End()

	start := time.Now()
	res := fn(ctx)

	fields := []any{
		"phase", res.Phase,
		"status", res.Status,
		"message", res.Message,
		"duration_ms", time.Since(start).Milliseconds(),
	}
	switch res.Status {
	case types.PhaseFailed:
		logger.WarnSkip(ctx, 2, "Phase run failed", fields...)
	case types.PhaseSkipped, types.PhaseDisabled:
		logger.DebugSkip(ctx, 2, "Phase run skipped", fields...)
	default:
		logger.InfoSkip(ctx, 2, "Phase run completed", fields...)
	}
	return res
}
