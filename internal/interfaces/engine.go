package interfaces

import (
	"context"
	"time"

	"mcube-trader/internal/types"
)

// Scheduler drives one trading day through its phases.
type Scheduler interface {
	InstallDailyJob(ctx context.Context) error
	RunSetupPhase(ctx context.Context, date time.Time) types.PhaseResult
	RunEntryPhase(ctx context.Context) types.PhaseResult
	RunMonitoringPhase(ctx context.Context) types.PhaseResult
	RunClosingPhase(ctx context.Context) types.PhaseResult
	RunAnalysisPhase(ctx context.Context) types.PhaseResult
}

type Executor interface {
	Execute(ctx context.Context, req types.RunRequest) (*types.RunSummary, error)
}

type RiskGate interface {
	Evaluate(ctx context.Context) (types.RiskVerdict, error)
}
