package risk

import (
	"context"
	"fmt"
	"math"

	"mcube-trader/internal/executor"
	"mcube-trader/internal/flags"
	"mcube-trader/internal/interfaces"
	"mcube-trader/internal/logger"
	"mcube-trader/internal/metrics"
	"mcube-trader/internal/types"
)

// Thresholds are used when the corresponding control flag is unset.
type Thresholds struct {
	StopLoss    float64
	Target      float64
	Materiality float64
}

// Gate compares live P&L with the stop-loss and profit-target flags and
// liquidates on breach. It holds no state of its own; alert memory lives in
// the flag store so restarts do not re-alert.
type Gate struct {
	gw       interfaces.OrderGateway
	exec     interfaces.Executor
	flags    interfaces.ControlFlagStore
	notifier interfaces.Notifier
	def      Thresholds
	liq      executor.LiquidationOptions
}

var _ interfaces.RiskGate = (*Gate)(nil)

func New(gw interfaces.OrderGateway, exec interfaces.Executor, fs interfaces.ControlFlagStore, n interfaces.Notifier, def Thresholds, liq executor.LiquidationOptions) *Gate {
	liq.InterBatchDelay = 0
	if liq.Tag == "" {
		liq.Tag = "STOPLOSS"
	}
	return &Gate{gw: gw, exec: exec, flags: fs, notifier: n, def: def, liq: liq}
}

func (g *Gate) Evaluate(ctx context.Context) (types.RiskVerdict, error) {
	pnl, err := g.gw.FetchPnL(ctx)
	if err != nil {
		return types.RiskVerdict{}, fmt.Errorf("fetch pnl: %w", err)
	}
	metrics.SetPnL(pnl)

	v := types.RiskVerdict{
		PnL:      pnl,
		StopLoss: g.flags.GetFloat(ctx, flags.StopLossLimit, g.def.StopLoss),
		Target:   g.flags.GetFloat(ctx, flags.MinDailyProfitTarget, g.def.Target),
	}

	if pnl <= v.StopLoss {
		return g.onBreach(ctx, v)
	}

	if g.flags.GetBool(ctx, flags.RiskBreachActive, false) {
		logger.Info(ctx, "P&L recovered above stop loss, breach episode closed", "pnl", pnl, "stop_loss", v.StopLoss)
		g.setFlag(ctx, flags.RiskBreachActive, "false")
		g.setFlag(ctx, flags.RiskLastAlertPnL, "")
	}

	if pnl >= v.Target {
		v.TargetReached = true
		if !g.flags.GetBool(ctx, flags.TargetNotified, false) {
			v.Alerted = g.notifier.Send(ctx, fmt.Sprintf("Profit target reached: P&L %.2f (target %.2f)", pnl, v.Target))
			g.setFlag(ctx, flags.TargetNotified, "true")
		}
	}

	logger.Debug(ctx, "Risk evaluated", "pnl", pnl, "stop_loss", v.StopLoss, "target", v.Target)
	return v, nil
}

func (g *Gate) onBreach(ctx context.Context, v types.RiskVerdict) (types.RiskVerdict, error) {
	v.Breached = true
	if !g.flags.GetBool(ctx, flags.RiskBreachActive, false) {
		metrics.RecordBreach()
		g.setFlag(ctx, flags.RiskBreachActive, "true")
	}
	logger.Risk(ctx, "STOP_LOSS_BREACH", "pnl", v.PnL, "stop_loss", v.StopLoss)

	runs, ok, err := executor.Liquidate(ctx, g.gw, g.exec, g.liq)
	v.Runs = runs
	v.Liquidated = ok
	if err != nil {
		logger.ErrorWithErr(ctx, "Stop-loss liquidation failed", err, "pnl", v.PnL)
	}
	if ok {
		if serr := flags.SetBool(ctx, g.flags, flags.OpenPositions, false); serr != nil {
			logger.ErrorWithErr(ctx, "Failed to clear open positions flag", serr)
		}
	}

	if g.shouldAlert(ctx, v.PnL) {
		status := "complete"
		if !ok {
			status = "INCOMPLETE, manual action needed"
		}
		v.Alerted = g.notifier.Send(ctx, fmt.Sprintf(
			"Stop loss breached: P&L %.2f (limit %.2f). Liquidation %s.", v.PnL, v.StopLoss, status))
		if serr := flags.SetFloat(ctx, g.flags, flags.RiskLastAlertPnL, v.PnL); serr != nil {
			logger.Warn(ctx, "Failed to record last alerted P&L", "error", serr)
		}
	}
	return v, err
}

// shouldAlert is true for the first alert of an episode and afterwards only
// when P&L moved by at least the materiality threshold.
func (g *Gate) shouldAlert(ctx context.Context, pnl float64) bool {
	last := g.flags.Get(ctx, flags.RiskLastAlertPnL, "")
	if last == "" {
		return true
	}
	lastPnL := g.flags.GetFloat(ctx, flags.RiskLastAlertPnL, pnl)
	materiality := g.flags.GetFloat(ctx, flags.RiskAlertMateriality, g.def.Materiality)
	return math.Abs(pnl-lastPnL) >= materiality
}

func (g *Gate) setFlag(ctx context.Context, name, value string) {
	if err := g.flags.Set(ctx, name, value, ""); err != nil {
		logger.Warn(ctx, "Flag write failed", "flag", name, "error", err)
	}
}
