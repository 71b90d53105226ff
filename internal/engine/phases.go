package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"mcube-trader/internal/executor"
	"mcube-trader/internal/flags"
	"mcube-trader/internal/logger"
	"mcube-trader/internal/sizing"
	"mcube-trader/internal/types"
)

// RunSetupPhase decides whether date is tradable and derives the day's
// expected move from India VIX.
func (s *Scheduler) RunSetupPhase(ctx context.Context, date time.Time) types.PhaseResult {
	return s.runPhase(ctx, types.StateSetup, date, func(ctx context.Context, cfg types.TradingDayConfig, now time.Time) (types.PhaseStatus, string, error) {
		vix := s.currentVIX(ctx)
		delta := dailyDelta(vix)

		tradable, reason := true, fmt.Sprintf("tradable, VIX %.2f", vix)
		switch wd := date.In(types.IST).Weekday(); {
		case wd == time.Saturday || wd == time.Sunday:
			tradable, reason = false, "weekend"
		case s.flags.GetBool(ctx, flags.MajorEventDay, false):
			tradable, reason = false, "major event day"
		case vix < s.cfg.Setup.VIXMin || vix > s.cfg.Setup.VIXMax:
			tradable, reason = false, fmt.Sprintf("VIX %.2f outside [%.2f, %.2f]", vix, s.cfg.Setup.VIXMin, s.cfg.Setup.VIXMax)
		}

		if err := flags.SetBool(ctx, s.flags, flags.IsDayTradable, tradable); err != nil {
			return "", "", err
		}
		s.setFlag(ctx, flags.SetupReason, reason)
		if err := flags.SetFloat(ctx, s.flags, flags.DailyDelta, delta); err != nil {
			return "", "", err
		}
		if err := s.days.MarkStarted(ctx, cfg.Date, now); err != nil {
			return "", "", fmt.Errorf("mark day started: %w", err)
		}

		logger.Info(ctx, "Day setup complete",
			"date", cfg.Date,
			"tradable", tradable,
			"reason", reason,
			"daily_delta", delta,
		)
		return types.PhaseOK, reason, nil
	})
}

// currentVIX prefers the operator's indiaVix flag, then the live quote,
// then the configured default.
func (s *Scheduler) currentVIX(ctx context.Context) float64 {
	if v := s.flags.GetFloat(ctx, flags.IndiaVIX, 0); v > 0 {
		return v
	}
	if sym := s.cfg.Setup.VIXSymbol; sym != "" {
		v, err := s.gw.LTP(ctx, sym)
		if err == nil && v > 0 {
			return v
		}
		logger.Warn(ctx, "India VIX unavailable, using default", "symbol", sym, "default", s.cfg.Setup.DefaultVIX, "error", err)
	}
	return s.cfg.Setup.DefaultVIX
}

// RunEntryPhase opens the day's short strangle once, inside the entry window.
func (s *Scheduler) RunEntryPhase(ctx context.Context) types.PhaseResult {
	return s.runPhase(ctx, types.StateEntryWindow, s.now(), func(ctx context.Context, cfg types.TradingDayConfig, now time.Time) (types.PhaseStatus, string, error) {
		take, err := cfg.At(cfg.TakeTrade)
		if err != nil {
			return "", "", err
		}
		last, err := cfg.At(cfg.LastTrade)
		if err != nil {
			return "", "", err
		}
		if !within(now, take, last) {
			return types.PhaseSkipped, "outside entry window", nil
		}
		if !s.flags.GetBool(ctx, flags.IsDayTradable, false) {
			return types.PhaseSkipped, "day is not tradable", nil
		}
		if s.flags.GetBool(ctx, flags.OpenPositions, false) {
			return types.PhaseSkipped, "position already open", nil
		}

		plan, margin, size, err := s.SizeEntry(ctx)
		if err != nil {
			return "", "", err
		}
		if !size.MarginAvailable || size.RecommendedLots == 0 {
			msg := fmt.Sprintf("insufficient margin: available %.2f, required per lot %.2f", margin.Available, size.MarginPerLot)
			s.notifier.Send(ctx, "Entry skipped, "+msg)
			return types.PhaseSkipped, msg, nil
		}

		ex := s.cfg.Execution
		sum, err := s.exec.Execute(ctx, types.RunRequest{
			Mode:            types.ModeOpen,
			TotalLots:       size.RecommendedLots,
			MaxLotsPerBatch: ex.MaxLotsPerBatch,
			InterBatchDelay: s.cfg.InterBatchDelay(),
			Legs:            plan.legs(s.cfg.Exchange, ex.Product, ex.OrderType),
			Tag:             "ENTRY",
		})
		if err != nil {
			return "", "", fmt.Errorf("entry run: %w", err)
		}
		s.setFlag(ctx, flags.LastRunKey, sum.RunKey)

		if !sum.Filled() {
			s.notifier.Send(ctx, fmt.Sprintf("Entry failed: %s", sum.Message))
			return types.PhaseFailed, sum.Message, nil
		}

		if err := flags.SetBool(ctx, s.flags, flags.OpenPositions, true); err != nil {
			return "", "", err
		}
		lots := sum.FilledLots()
		s.setFlag(ctx, flags.EntryPremium, strconv.FormatFloat(plan.PremiumPerUnit(), 'f', -1, 64))
		s.setFlag(ctx, flags.EntryLots, strconv.Itoa(lots))
		s.setFlag(ctx, flags.CallSymbol, plan.CallSymbol)
		s.setFlag(ctx, flags.PutSymbol, plan.PutSymbol)

		msg := fmt.Sprintf("sold %d of %d lots of %s/%s at %.2f combined premium (%s)",
			lots, size.RecommendedLots, plan.CallSymbol, plan.PutSymbol, plan.PremiumPerUnit(), sum.Status)
		s.notifier.Send(ctx, "Entry: "+msg)
		return types.PhaseOK, msg, nil
	})
}

// RunMonitoringPhase hands an open position to the risk gate.
func (s *Scheduler) RunMonitoringPhase(ctx context.Context) types.PhaseResult {
	return s.runPhase(ctx, types.StateMonitoring, s.now(), func(ctx context.Context, cfg types.TradingDayConfig, now time.Time) (types.PhaseStatus, string, error) {
		take, err := cfg.At(cfg.TakeTrade)
		if err != nil {
			return "", "", err
		}
		closePos, err := cfg.At(cfg.ClosePosition)
		if err != nil {
			return "", "", err
		}
		if !within(now, take, closePos) {
			return types.PhaseSkipped, "outside monitoring window", nil
		}
		if !s.flags.GetBool(ctx, flags.OpenPositions, false) {
			return types.PhaseSkipped, "no open position", nil
		}

		v, err := s.risk.Evaluate(ctx)
		if err != nil {
			return "", "", err
		}
		switch {
		case v.Breached && !v.Liquidated:
			return types.PhaseFailed, fmt.Sprintf("stop loss breached at %.2f, liquidation incomplete", v.PnL), nil
		case v.Breached:
			return types.PhaseOK, fmt.Sprintf("stop loss breached at %.2f, positions closed", v.PnL), nil
		default:
			return types.PhaseOK, fmt.Sprintf("P&L %.2f within limits", v.PnL), nil
		}
	})
}

// RunClosingPhase exits the position on target, on expiry day, or at the
// hard cutoff before market close.
func (s *Scheduler) RunClosingPhase(ctx context.Context) types.PhaseResult {
	return s.runPhase(ctx, types.StateClosingWindow, s.now(), func(ctx context.Context, cfg types.TradingDayConfig, now time.Time) (types.PhaseStatus, string, error) {
		closePos, err := cfg.At(cfg.ClosePosition)
		if err != nil {
			return "", "", err
		}
		mktClose, err := cfg.At(cfg.MarketClose)
		if err != nil {
			return "", "", err
		}
		if !within(now, closePos, mktClose) {
			return types.PhaseSkipped, "outside closing window", nil
		}
		if !s.flags.GetBool(ctx, flags.OpenPositions, false) {
			return types.PhaseSkipped, "no open position", nil
		}

		reason, err := s.closeReason(ctx, now, mktClose)
		if err != nil {
			return "", "", err
		}
		if reason == "" {
			return types.PhaseSkipped, "holding position", nil
		}

		logger.Info(ctx, "Closing position", "reason", reason)
		runs, ok, err := executor.Liquidate(ctx, s.gw, s.exec, s.liquidationOptions("CLOSE"))
		if err != nil {
			s.notifier.Send(ctx, fmt.Sprintf("Close (%s) incomplete, manual action needed: %v", reason, err))
			return "", "", err
		}
		if len(runs) > 0 {
			s.setFlag(ctx, flags.LastRunKey, runs[len(runs)-1].RunKey)
		}
		if !ok {
			s.notifier.Send(ctx, fmt.Sprintf("Close (%s) incomplete, manual action needed", reason))
			return types.PhaseFailed, "liquidation incomplete", nil
		}
		if err := flags.SetBool(ctx, s.flags, flags.OpenPositions, false); err != nil {
			return "", "", err
		}
		s.notifier.Send(ctx, fmt.Sprintf("Positions closed: %s", reason))
		return types.PhaseOK, "closed: " + reason, nil
	})
}

func (s *Scheduler) closeReason(ctx context.Context, now, mktClose time.Time) (string, error) {
	pnl, err := s.gw.FetchPnL(ctx)
	if err != nil {
		return "", fmt.Errorf("fetch pnl: %w", err)
	}
	target := s.flags.GetFloat(ctx, flags.MinDailyProfitTarget, s.cfg.Risk.MinDailyProfitTarget)
	if pnl >= target {
		return fmt.Sprintf("profit target reached (%.2f >= %.2f)", pnl, target), nil
	}

	if exp := s.flags.Get(ctx, flags.ExpiryDate, ""); exp != "" {
		dte, err := daysToExpiry(now, exp)
		if err != nil {
			logger.Warn(ctx, "Ignoring unparsable expiry date", "expiry_date", exp, "error", err)
		} else if dte <= 0 {
			return fmt.Sprintf("expiry day (%s)", exp), nil
		}
	}

	cutoff := mktClose.Add(-time.Duration(s.cfg.Schedule.HardCutoffMin) * time.Minute)
	if !now.Before(cutoff) {
		return "hard cutoff " + cutoff.Format("15:04"), nil
	}
	return "", nil
}

// RunAnalysisPhase records the day summary and resets per-day flags.
func (s *Scheduler) RunAnalysisPhase(ctx context.Context) types.PhaseResult {
	return s.runPhase(ctx, types.StateAnalysis, s.now(), func(ctx context.Context, cfg types.TradingDayConfig, now time.Time) (types.PhaseStatus, string, error) {
		mktClose, err := cfg.At(cfg.MarketClose)
		if err != nil {
			return "", "", err
		}
		if now.Before(mktClose) {
			return types.PhaseSkipped, "market still open", nil
		}

		summary := types.DaySummary{Date: cfg.Date, CreatedAt: now}
		var notes []string

		pnl, err := s.gw.FetchPnL(ctx)
		if err != nil {
			notes = append(notes, "pnl unavailable: "+err.Error())
		}
		summary.PnL = pnl

		positions, err := s.gw.FetchPositions(ctx)
		if err != nil {
			notes = append(notes, "positions unavailable: "+err.Error())
		}
		for _, p := range positions {
			if p.Quantity != 0 {
				summary.LegCount++
			}
		}
		summary.Closed = !s.flags.GetBool(ctx, flags.OpenPositions, false)
		if reason := s.flags.Get(ctx, flags.SetupReason, ""); reason != "" {
			notes = append(notes, "setup: "+reason)
		}
		summary.Note = strings.Join(notes, "; ")

		if err := s.days.SaveSummary(ctx, summary); err != nil {
			return "", "", fmt.Errorf("save summary: %w", err)
		}
		if s.eod != nil {
			path, err := s.eod.SummarizeDay(ctx, summary)
			if err != nil {
				logger.ErrorWithErr(ctx, "EOD report failed", err, "date", cfg.Date)
			} else {
				logger.Info(ctx, "EOD report written", "path", path)
			}
		}

		for _, name := range flags.Transient {
			s.setFlag(ctx, name, "")
		}

		msg := fmt.Sprintf("day %s P&L %s, %d open legs", cfg.Date, strconv.FormatFloat(summary.PnL, 'f', 2, 64), summary.LegCount)
		s.notifier.Send(ctx, "Day summary: "+msg)
		return types.PhaseOK, msg, nil
	})
}

// SizeEntry plans the strangle from today's delta and sizes it against the
// current margin.
func (s *Scheduler) SizeEntry(ctx context.Context) (EntryPlan, types.MarginSnapshot, sizing.Result, error) {
	delta := s.flags.GetFloat(ctx, flags.DailyDelta, dailyDelta(s.cfg.Setup.DefaultVIX))
	plan, err := s.planner.Plan(ctx, delta, s.flags.Get(ctx, flags.ExpiryCode, ""))
	if err != nil {
		return EntryPlan{}, types.MarginSnapshot{}, sizing.Result{}, fmt.Errorf("plan entry: %w", err)
	}

	margin, err := s.gw.FetchMargin(ctx)
	if err != nil {
		return plan, margin, sizing.Result{}, fmt.Errorf("fetch margin: %w", err)
	}

	p := sizing.Params{
		MarginFactor:    s.cfg.Sizing.MarginFactor,
		MaxUtilization:  s.cfg.Sizing.MaxUtilization,
		LotSize:         plan.LotSize,
		AveragingPcts:   s.cfg.Sizing.AveragingPcts,
		AveragingCapPct: s.cfg.Sizing.AveragingCapPct,
		PremiumStepPct:  s.cfg.Sizing.PremiumStepPct,
	}
	size, err := sizing.New(p).Size(sizing.Input{
		Margin:         margin,
		Spot:           plan.Spot,
		NotionalPerLot: plan.NotionalPerLot(),
		CallStrike:     plan.CallStrike,
		PutStrike:      plan.PutStrike,
		PremiumPerUnit: plan.PremiumPerUnit(),
	})
	if err != nil {
		return plan, margin, size, fmt.Errorf("size entry: %w", err)
	}
	return plan, margin, size, nil
}
