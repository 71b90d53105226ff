package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"mcube-trader/internal/interfaces"
	"mcube-trader/internal/types"
)

const (
	progressPrefix = "batch_progress:"
	cancelPrefix   = "batch_cancel:"

	// ProgressTTL bounds how long progress and cancel keys outlive a run.
	ProgressTTL = 10 * time.Minute
)

func ProgressKey(runKey string) string { return progressPrefix + runKey }

func CancelKey(runKey string) string { return cancelPrefix + runKey }

// BatchSizes splits totalLots into batches of at most batchSize; the last
// batch carries the remainder.
func BatchSizes(totalLots, batchSize int) []int {
	if totalLots <= 0 {
		return nil
	}
	if batchSize <= 0 || batchSize > totalLots {
		batchSize = totalLots
	}
	n := (totalLots + batchSize - 1) / batchSize
	sizes := make([]int, 0, n)
	for remaining := totalLots; remaining > 0; remaining -= batchSize {
		sizes = append(sizes, min(batchSize, remaining))
	}
	return sizes
}

// RequestCancel asks a running batch run to stop at its next checkpoint.
func RequestCancel(ctx context.Context, ps interfaces.ProgressStore, runKey string) error {
	if runKey == "" {
		return fmt.Errorf("run key is empty")
	}
	return ps.Set(ctx, CancelKey(runKey), []byte("1"), ProgressTTL)
}

func ReadProgress(ctx context.Context, ps interfaces.ProgressStore, runKey string) (types.BatchProgress, bool, error) {
	raw, ok, err := ps.Get(ctx, ProgressKey(runKey))
	if err != nil || !ok {
		return types.BatchProgress{}, ok, err
	}
	var p types.BatchProgress
	if err := json.Unmarshal(raw, &p); err != nil {
		return types.BatchProgress{}, false, fmt.Errorf("decode progress %s: %w", runKey, err)
	}
	return p, true, nil
}

type LiquidationOptions struct {
	MaxLotsPerBatch int
	InterBatchDelay time.Duration
	OrderType       string
	Tag             string
	// Exchange is the derivatives segment; positions there must carry a
	// known lot size before they are split into batches.
	Exchange string
}

type liquidationGroup struct {
	lots    int
	lotSize int
}

// PlanLiquidation builds CLOSE requests that flatten every open position.
// Positions holding the same number of lots of the same lot size share a
// request so their legs are closed together batch by batch.
func PlanLiquidation(positions []types.PositionSnapshot, opts LiquidationOptions) []types.RunRequest {
	groups := map[liquidationGroup][]types.LegSpec{}
	for _, p := range positions {
		if p.Quantity == 0 {
			continue
		}
		qty := p.Quantity
		side := types.SideSell
		if qty < 0 {
			qty = -qty
			side = types.SideBuy
		}
		lotSize := p.LotSize
		if lotSize <= 0 || qty%lotSize != 0 {
			lotSize = 1
		}
		key := liquidationGroup{lots: qty / lotSize, lotSize: lotSize}
		groups[key] = append(groups[key], types.LegSpec{
			Name:      p.Symbol,
			Symbol:    p.Symbol,
			Exchange:  p.Exchange,
			Side:      side,
			Product:   p.Product,
			OrderType: opts.OrderType,
			LotSize:   lotSize,
		})
	}

	keys := make([]liquidationGroup, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].lots != keys[j].lots {
			return keys[i].lots < keys[j].lots
		}
		return keys[i].lotSize < keys[j].lotSize
	})

	reqs := make([]types.RunRequest, 0, len(keys))
	for _, k := range keys {
		legs := groups[k]
		sort.Slice(legs, func(i, j int) bool { return legs[i].Symbol < legs[j].Symbol })
		reqs = append(reqs, types.RunRequest{
			Mode:            types.ModeClose,
			TotalLots:       k.lots,
			MaxLotsPerBatch: opts.MaxLotsPerBatch,
			InterBatchDelay: opts.InterBatchDelay,
			Legs:            legs,
			Tag:             opts.Tag,
		})
	}
	return reqs
}
