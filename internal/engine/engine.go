package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"mcube-trader/internal/executor"
	"mcube-trader/internal/flags"
	"mcube-trader/internal/interfaces"
	"mcube-trader/internal/logger"
	"mcube-trader/internal/metrics"
	"mcube-trader/internal/store"
	"mcube-trader/internal/types"
)

const masterJob = "master"

// Deps are the collaborators of the scheduler. Eod may be nil.
type Deps struct {
	Config   *store.Config
	Gateway  interfaces.OrderGateway
	Executor interfaces.Executor
	Risk     interfaces.RiskGate
	Flags    interfaces.ControlFlagStore
	Days     interfaces.DayConfigRepository
	Notifier interfaces.Notifier
	Eod      interfaces.EodSummarizer
}

// Scheduler runs the trading day. Phases are serialised: a phase never
// starts while another is still running.
type Scheduler struct {
	cfg      *store.Config
	gw       interfaces.OrderGateway
	exec     interfaces.Executor
	risk     interfaces.RiskGate
	flags    interfaces.ControlFlagStore
	days     interfaces.DayConfigRepository
	notifier interfaces.Notifier
	eod      interfaces.EodSummarizer
	planner  *EntryPlanner

	now   func() time.Time
	after afterFunc
	jobs  *jobRunner

	phaseMu sync.Mutex
}

var _ interfaces.Scheduler = (*Scheduler)(nil)

type Option func(*Scheduler)

// WithClock replaces the wall clock used for windows and job times.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

func withAfterFunc(fn afterFunc) Option {
	return func(s *Scheduler) { s.after = fn }
}

func New(d Deps, opts ...Option) *Scheduler {
	s := &Scheduler{
		cfg:      d.Config,
		gw:       d.Gateway,
		exec:     d.Executor,
		risk:     d.Risk,
		flags:    d.Flags,
		days:     d.Days,
		notifier: d.Notifier,
		eod:      d.Eod,
		now:      time.Now,
		after:    realAfter,
	}
	for _, o := range opts {
		o(s)
	}
	s.planner = NewEntryPlanner(d.Gateway, d.Config.Underlying, d.Config.SpotSymbol, d.Config.StrikeStep)
	s.jobs = newJobRunner(s.now, s.after)
	return s
}

// InstallDailyJob installs the master job at schedule.master_time. When the
// current day is not over yet its phase jobs are installed right away.
func (s *Scheduler) InstallDailyJob(ctx context.Context) error {
	ctx = context.WithoutCancel(ctx)
	if err := s.jobs.Daily(masterJob, s.cfg.Schedule.MasterTime, types.IST, func() {
		if err := s.installDay(ctx, s.now()); err != nil {
			logger.ErrorWithErr(ctx, "Failed to install day jobs", err)
		}
	}); err != nil {
		return err
	}
	logger.Info(ctx, "Master job installed", "at", s.cfg.Schedule.MasterTime)
	return s.installDay(ctx, s.now())
}

// Stop cancels every installed job. Running phases finish normally.
func (s *Scheduler) Stop() {
	s.jobs.Stop()
}

// JobNames lists the installed jobs.
func (s *Scheduler) JobNames() []string {
	return s.jobs.Names()
}

func (s *Scheduler) installDay(ctx context.Context, now time.Time) error {
	cfg, err := s.days.GetOrCreate(ctx, istDate(now))
	if err != nil {
		return fmt.Errorf("day config: %w", err)
	}
	open, take, last, closePos, mktClose, closeDay, err := cfg.Times()
	if err != nil {
		return err
	}
	if now.After(closeDay) {
		logger.Info(ctx, "Trading day already over, phase jobs not installed", "date", cfg.Date)
		return nil
	}

	sch := s.cfg.Schedule
	day := midnightIST(now)
	s.jobs.At("setup", open, func() { s.RunSetupPhase(ctx, day) })
	s.jobs.Every("entry", take, last, seconds(sch.EntryIntervalSec), func() { s.RunEntryPhase(ctx) })
	s.jobs.Every("monitoring", take, closePos, seconds(sch.MonitorIntervalSec), func() { s.RunMonitoringPhase(ctx) })
	s.jobs.Every("closing", closePos, mktClose, seconds(sch.ClosingIntervalSec), func() { s.RunClosingPhase(ctx) })
	s.jobs.At("analysis", closeDay, func() { s.RunAnalysisPhase(ctx) })

	logger.Info(ctx, "Day jobs installed",
		"date", cfg.Date,
		"open", cfg.Open,
		"take_trade", cfg.TakeTrade,
		"last_trade", cfg.LastTrade,
		"close_position", cfg.ClosePosition,
		"market_close", cfg.MarketClose,
		"close_day", cfg.CloseDay,
	)
	return nil
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// phaseFunc does the work of one phase once the day config is resolved and
// the day is known to be enabled.
type phaseFunc func(ctx context.Context, cfg types.TradingDayConfig, now time.Time) (types.PhaseStatus, string, error)

func (s *Scheduler) runPhase(ctx context.Context, phase types.DayState, date time.Time, fn phaseFunc) (res types.PhaseResult) {
	s.phaseMu.Lock()
	defer s.phaseMu.Unlock()

	now := s.now()
	res = types.PhaseResult{Phase: phase, At: now}
	defer func() {
		if r := recover(); r != nil {
			res.Status = types.PhaseFailed
			res.Message = fmt.Sprintf("panic: %v", r)
			logger.Error(ctx, "Phase panicked", "phase", phase, "panic", r)
		}
		metrics.RecordPhase(string(phase), string(res.Status))
	}()

	cfg, err := s.days.GetOrCreate(ctx, istDate(date))
	if err != nil {
		return s.failed(ctx, res, err)
	}
	if !s.flags.GetBool(ctx, flags.AutoTradingEnabled, true) || !cfg.Enabled {
		res.Status = types.PhaseDisabled
		res.Message = "auto trading disabled"
		logger.Debug(ctx, "Phase skipped, trading disabled", "phase", phase, "date", cfg.Date)
		return res
	}

	status, msg, err := fn(ctx, cfg, now)
	if err != nil {
		return s.failed(ctx, res, err)
	}
	res.Status, res.Message = status, msg
	if status == types.PhaseSkipped {
		logger.Debug(ctx, "Phase skipped", "phase", phase, "reason", msg)
	} else {
		logger.Info(ctx, "Phase finished", "phase", phase, "status", status, "message", msg)
	}
	return res
}

func (s *Scheduler) failed(ctx context.Context, res types.PhaseResult, err error) types.PhaseResult {
	res.Status = types.PhaseFailed
	res.Message = err.Error()
	logger.ErrorWithErr(ctx, "Phase failed", err, "phase", res.Phase)
	return res
}

func (s *Scheduler) liquidationOptions(tag string) executor.LiquidationOptions {
	return executor.LiquidationOptions{
		MaxLotsPerBatch: s.cfg.Execution.MaxLotsPerBatch,
		InterBatchDelay: s.cfg.InterBatchDelay(),
		OrderType:       s.cfg.Execution.OrderType,
		Tag:             tag,
		Exchange:        s.cfg.Exchange,
	}
}

func (s *Scheduler) setFlag(ctx context.Context, name, value string) {
	if err := s.flags.Set(ctx, name, value, ""); err != nil {
		logger.Warn(ctx, "Flag write failed", "flag", name, "error", err)
	}
}
