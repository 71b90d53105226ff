package executor

import (
	"context"
	"errors"
	"fmt"

	"mcube-trader/internal/interfaces"
	"mcube-trader/internal/logger"
	"mcube-trader/internal/types"
)

// ErrUnknownLotSize stops a liquidation that would otherwise split a
// derivatives position into single units.
var ErrUnknownLotSize = errors.New("unknown lot size")

// Liquidate flattens every open position through CLOSE-mode runs. It stops
// at the first run that does not fully succeed; ok is true only when all
// runs succeeded (or nothing was open).
func Liquidate(ctx context.Context, gw interfaces.OrderGateway, exec interfaces.Executor, opts LiquidationOptions) (runs []types.RunSummary, ok bool, err error) {
	positions, err := gw.FetchPositions(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("fetch positions: %w", err)
	}

	if err := resolveLotSizes(ctx, gw, positions, opts.Exchange); err != nil {
		logger.ErrorWithErr(ctx, "Liquidation aborted before any order", err)
		return nil, false, err
	}

	reqs := PlanLiquidation(positions, opts)
	if len(reqs) == 0 {
		logger.Info(ctx, "Nothing to liquidate")
		return nil, true, nil
	}

	for _, req := range reqs {
		sum, err := exec.Execute(ctx, req)
		if err != nil {
			return runs, false, fmt.Errorf("liquidation run: %w", err)
		}
		runs = append(runs, *sum)
		if !sum.Success || sum.Cancelled {
			logger.Warn(ctx, "Liquidation run did not complete",
				"run_key", sum.RunKey,
				"status", sum.Status,
				"batches_completed", sum.BatchesCompleted,
			)
			return runs, false, nil
		}
	}
	return runs, true, nil
}

// resolveLotSizes fills in missing lot sizes for positions on the
// derivatives exchange from the instrument master.
func resolveLotSizes(ctx context.Context, gw interfaces.OrderGateway, positions []types.PositionSnapshot, exchange string) error {
	if exchange == "" {
		return nil
	}
	for i, p := range positions {
		if p.Quantity == 0 || p.Exchange != exchange || p.LotSize > 1 {
			continue
		}
		inst, err := gw.ResolveInstrument(ctx, p.Symbol)
		if err != nil {
			return fmt.Errorf("%s: %w: %v", p.Symbol, ErrUnknownLotSize, err)
		}
		if inst.LotSize <= 1 {
			return fmt.Errorf("%s: %w", p.Symbol, ErrUnknownLotSize)
		}
		positions[i].LotSize = inst.LotSize
	}
	for _, p := range positions {
		if p.Exchange == exchange && p.LotSize > 1 && p.Quantity%p.LotSize != 0 {
			return fmt.Errorf("%s: quantity %d is not a multiple of lot size %d: %w", p.Symbol, p.Quantity, p.LotSize, ErrUnknownLotSize)
		}
	}
	return nil
}
