package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"mcube-trader/internal/broker"
	"mcube-trader/internal/broker/brokertest"
	"mcube-trader/internal/progress"
	"mcube-trader/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strangleLegs() []types.LegSpec {
	return []types.LegSpec{
		{Name: "CALL", Symbol: "NIFTY24OCT24500CE", Exchange: "NFO", Side: types.SideSell, Product: "NRML", OrderType: "MARKET", LotSize: 75},
		{Name: "PUT", Symbol: "NIFTY24OCT23500PE", Exchange: "NFO", Side: types.SideSell, Product: "NRML", OrderType: "MARKET", LotSize: 75},
	}
}

func noSleep(context.Context, time.Duration) error { return nil }

func newHarness() (*brokertest.Session, *progress.MemoryStore, *brokertest.Gateway) {
	gw := brokertest.NewGateway()
	return gw.Session(), progress.NewMemoryStore(0), gw
}

func TestBatchSizes(t *testing.T) {
	assert.Equal(t, []int{20, 20, 5}, BatchSizes(45, 20))
	assert.Equal(t, []int{10}, BatchSizes(10, 20))
	assert.Equal(t, []int{7}, BatchSizes(7, 0))
	assert.Nil(t, BatchSizes(0, 20))

	for total := 1; total <= 60; total++ {
		for size := 1; size <= 25; size++ {
			sizes := BatchSizes(total, size)
			sum := 0
			for _, s := range sizes {
				require.LessOrEqual(t, s, size)
				sum += s
			}
			require.Equal(t, total, sum)
			require.Equal(t, (total+size-1)/size, len(sizes))
		}
	}
}

func TestExecute_SplitsIntoCappedBatches(t *testing.T) {
	sess, ps, gw := newHarness()
	x := New(gw, ps, WithSleeper(noSleep))

	sum, err := x.Execute(context.Background(), types.RunRequest{
		RunKey:          "run-45",
		Mode:            types.ModeOpen,
		TotalLots:       45,
		MaxLotsPerBatch: 20,
		Legs:            strangleLegs(),
	})
	require.NoError(t, err)

	assert.Equal(t, types.RunCompleted, sum.Status)
	assert.True(t, sum.Success)
	assert.Equal(t, 3, sum.TotalBatches)
	assert.Equal(t, 3, sum.BatchesCompleted)
	require.Len(t, sum.Batches, 3)
	assert.Equal(t, 20, sum.Batches[0].Lots)
	assert.Equal(t, 20, sum.Batches[1].Lots)
	assert.Equal(t, 5, sum.Batches[2].Lots)
	assert.Equal(t, 375, sum.Batches[2].Legs[0].Quantity)
	assert.Equal(t, types.LegStats{Success: 3}, sum.LegStats["CALL"])
	assert.Equal(t, types.LegStats{Success: 3}, sum.LegStats["PUT"])
	assert.Equal(t, 1, sess.Closed())

	p, ok, err := ReadProgress(context.Background(), ps, "run-45")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, p.IsComplete)
	assert.True(t, p.IsSuccess)
	assert.Equal(t, 3, p.BatchesCompleted)
}

func TestExecute_CancelBeforeBatchN(t *testing.T) {
	for _, n := range []int{1, 2, 3} {
		t.Run(fmt.Sprintf("batch %d", n), func(t *testing.T) {
			sess, ps, gw := newHarness()
			ctx := context.Background()
			runKey := fmt.Sprintf("cancel-%d", n)

			if n == 1 {
				require.NoError(t, RequestCancel(ctx, ps, runKey))
			}
			sleeps := 0
			x := New(gw, ps, WithSleeper(func(ctx context.Context, _ time.Duration) error {
				sleeps++
				if sleeps == n-1 {
					return RequestCancel(ctx, ps, runKey)
				}
				return nil
			}))

			sum, err := x.Execute(ctx, types.RunRequest{
				RunKey:          runKey,
				Mode:            types.ModeOpen,
				TotalLots:       45,
				MaxLotsPerBatch: 20,
				Legs:            strangleLegs(),
			})
			require.NoError(t, err)

			assert.Equal(t, types.RunCancelled, sum.Status)
			assert.True(t, sum.Cancelled)
			assert.True(t, sum.Success)
			assert.Equal(t, n-1, sum.BatchesCompleted)
			assert.Equal(t, n-1, sess.Calls("NIFTY24OCT24500CE"))
			assert.Equal(t, 1, sess.Closed())

			p, ok, err := ReadProgress(ctx, ps, runKey)
			require.NoError(t, err)
			require.True(t, ok)
			assert.True(t, p.IsCancelled)
		})
	}
}

func TestExecute_CancelDuringBatchStopsAfterIt(t *testing.T) {
	sess, ps, gw := newHarness()
	ctx := context.Background()
	sess.OnPlace = func(req types.OrderReq, batch int) error {
		if batch == 1 {
			return RequestCancel(ctx, ps, "mid")
		}
		return nil
	}
	x := New(gw, ps, WithSleeper(noSleep))

	sum, err := x.Execute(ctx, types.RunRequest{
		RunKey: "mid", Mode: types.ModeOpen, TotalLots: 45, MaxLotsPerBatch: 20, Legs: strangleLegs(),
	})
	require.NoError(t, err)

	assert.True(t, sum.Cancelled)
	assert.Equal(t, 1, sum.BatchesCompleted)
}

func TestExecute_CloseModeStopsOnFirstFailedBatch(t *testing.T) {
	sess, ps, gw := newHarness()
	sess.OnPlace = func(req types.OrderReq, batch int) error {
		if req.Symbol == "NIFTY24OCT23500PE" && batch == 2 {
			return fmt.Errorf("margin call: %w", broker.ErrRejected)
		}
		return nil
	}
	x := New(gw, ps, WithSleeper(noSleep))

	sum, err := x.Execute(context.Background(), types.RunRequest{
		Mode: types.ModeClose, TotalLots: 45, MaxLotsPerBatch: 20, Legs: strangleLegs(),
	})
	require.NoError(t, err)

	assert.Equal(t, types.RunFailed, sum.Status)
	assert.False(t, sum.Success)
	assert.Equal(t, 2, sum.BatchesCompleted)
	assert.Equal(t, 2, sess.Calls("NIFTY24OCT23500PE"))
	assert.Equal(t, 2, sess.Calls("NIFTY24OCT24500CE"))
	assert.NotEmpty(t, sum.RunKey)

	failed := sum.Batches[1].Legs[1]
	assert.False(t, failed.Success)
	assert.Equal(t, types.ErrKindOrderRejected, failed.ErrorKind)
	assert.Empty(t, failed.RawError)
}

func TestExecute_OpenModeContinuesPastFailures(t *testing.T) {
	sess, ps, gw := newHarness()
	sess.OnPlace = func(req types.OrderReq, batch int) error {
		if req.Symbol == "NIFTY24OCT23500PE" && batch == 2 {
			return errors.New("exchange timeout")
		}
		return nil
	}
	x := New(gw, ps, WithSleeper(noSleep))

	sum, err := x.Execute(context.Background(), types.RunRequest{
		Mode: types.ModeOpen, TotalLots: 45, MaxLotsPerBatch: 20, Legs: strangleLegs(),
	})
	require.NoError(t, err)

	assert.Equal(t, types.RunCompleted, sum.Status)
	assert.True(t, sum.Success)
	assert.Equal(t, 3, sum.BatchesCompleted)
	assert.Equal(t, 3, sess.Calls("NIFTY24OCT23500PE"))
	assert.Equal(t, 1, sum.Failures())
	assert.Equal(t, types.LegStats{Success: 2, Failure: 1}, sum.LegStats["PUT"])

	failed := sum.Batches[1].Legs[1]
	assert.Equal(t, types.ErrKindUnknownBroker, failed.ErrorKind)
	assert.Equal(t, "exchange timeout", failed.RawError)
}

func TestExecute_OpenModeNothingFilledFails(t *testing.T) {
	sess, ps, gw := newHarness()
	sess.OnPlace = func(types.OrderReq, int) error { return broker.ErrRejected }
	x := New(gw, ps, WithSleeper(noSleep))

	sum, err := x.Execute(context.Background(), types.RunRequest{
		Mode: types.ModeOpen, TotalLots: 10, MaxLotsPerBatch: 5, Legs: strangleLegs(),
	})
	require.NoError(t, err)

	assert.Equal(t, types.RunFailed, sum.Status)
	assert.False(t, sum.Success)
	assert.Equal(t, 4, sum.Failures())
}

func TestExecute_LoginFailureAbortsWithoutSummary(t *testing.T) {
	_, ps, gw := newHarness()
	gw.LoginErr = fmt.Errorf("token expired: %w", broker.ErrAuth)
	x := New(gw, ps, WithSleeper(noSleep))

	sum, err := x.Execute(context.Background(), types.RunRequest{
		RunKey: "auth", Mode: types.ModeOpen, TotalLots: 5, MaxLotsPerBatch: 5, Legs: strangleLegs(),
	})
	require.Error(t, err)
	assert.Nil(t, sum)
	assert.True(t, IsAuthentication(err))
	assert.ErrorIs(t, err, broker.ErrAuth)

	_, ok, _ := ReadProgress(context.Background(), ps, "auth")
	assert.False(t, ok)
}

func TestExecute_PanicInGatewayBecomesLegFailure(t *testing.T) {
	sess, ps, gw := newHarness()
	sess.OnPlace = func(req types.OrderReq, _ int) error {
		if req.Symbol == "NIFTY24OCT24500CE" {
			panic("boom")
		}
		return nil
	}
	x := New(gw, ps, WithSleeper(noSleep))

	sum, err := x.Execute(context.Background(), types.RunRequest{
		Mode: types.ModeClose, TotalLots: 5, MaxLotsPerBatch: 5, Legs: strangleLegs(),
	})
	require.NoError(t, err)

	assert.False(t, sum.Success)
	leg := sum.Batches[0].Legs[0]
	assert.Equal(t, types.ErrKindUnknownBroker, leg.ErrorKind)
	assert.Equal(t, "boom", leg.RawError)
	assert.Equal(t, 1, sess.Closed())
}

func TestExecute_ContextCancelledDuringSleep(t *testing.T) {
	_, ps, gw := newHarness()
	ctx, cancel := context.WithCancel(context.Background())
	x := New(gw, ps, WithSleeper(func(ctx context.Context, d time.Duration) error {
		cancel()
		return sleepCtx(ctx, d)
	}))

	sum, err := x.Execute(ctx, types.RunRequest{
		Mode: types.ModeOpen, TotalLots: 45, MaxLotsPerBatch: 20, InterBatchDelay: time.Hour, Legs: strangleLegs(),
	})
	require.NoError(t, err)
	assert.True(t, sum.Cancelled)
	assert.Equal(t, 1, sum.BatchesCompleted)
}

func TestExecute_InvalidRequest(t *testing.T) {
	sess, ps, gw := newHarness()
	x := New(gw, ps, WithSleeper(noSleep))

	sum, err := x.Execute(context.Background(), types.RunRequest{Mode: types.ModeOpen, TotalLots: 0, Legs: strangleLegs()})
	require.NoError(t, err)
	assert.Equal(t, types.RunFailed, sum.Status)
	assert.Equal(t, 0, sess.Closed())

	sum, err = x.Execute(context.Background(), types.RunRequest{Mode: types.ModeOpen, TotalLots: 3})
	require.NoError(t, err)
	assert.Equal(t, types.RunFailed, sum.Status)
}

type recordingJournal struct {
	mu      sync.Mutex
	entries []types.LegResult
}

func (j *recordingJournal) RecordOrder(_ context.Context, _ string, _ types.RunMode, _ int, leg types.LegResult) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, leg)
}

func TestExecute_JournalsEveryLeg(t *testing.T) {
	_, ps, gw := newHarness()
	j := &recordingJournal{}
	x := New(gw, ps, WithSleeper(noSleep), WithJournal(j))

	_, err := x.Execute(context.Background(), types.RunRequest{
		Mode: types.ModeOpen, TotalLots: 45, MaxLotsPerBatch: 20, Legs: strangleLegs(),
	})
	require.NoError(t, err)
	assert.Len(t, j.entries, 6)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, types.ErrKindNone, Classify(nil))
	assert.Equal(t, types.ErrKindOrderRejected, Classify(fmt.Errorf("x: %w", broker.ErrRejected)))
	assert.Equal(t, types.ErrKindAuthentication, Classify(broker.ErrAuth))
	assert.Equal(t, types.ErrKindCancelled, Classify(context.Canceled))
	assert.Equal(t, types.ErrKindUnknownBroker, Classify(errors.New("?")))
}

func TestPlanLiquidation(t *testing.T) {
	positions := []types.PositionSnapshot{
		{Symbol: "NIFTY24OCT24500CE", Exchange: "NFO", Product: "NRML", Quantity: -750, LotSize: 75},
		{Symbol: "NIFTY24OCT23500PE", Exchange: "NFO", Product: "NRML", Quantity: -750, LotSize: 75},
		{Symbol: "NIFTY24OCT24000CE", Exchange: "NFO", Product: "NRML", Quantity: 150, LotSize: 75},
		{Symbol: "FLAT", Quantity: 0, LotSize: 75},
	}

	reqs := PlanLiquidation(positions, LiquidationOptions{MaxLotsPerBatch: 20, OrderType: "MARKET"})
	require.Len(t, reqs, 2)

	assert.Equal(t, 2, reqs[0].TotalLots)
	require.Len(t, reqs[0].Legs, 1)
	assert.Equal(t, types.SideSell, reqs[0].Legs[0].Side)

	assert.Equal(t, 10, reqs[1].TotalLots)
	require.Len(t, reqs[1].Legs, 2)
	for _, l := range reqs[1].Legs {
		assert.Equal(t, types.SideBuy, l.Side)
		assert.Equal(t, 75, l.LotSize)
	}
	for _, r := range reqs {
		assert.Equal(t, types.ModeClose, r.Mode)
	}
}

func TestPlanLiquidation_SplitsDifferentLotSizes(t *testing.T) {
	positions := []types.PositionSnapshot{
		{Symbol: "NIFTY24OCT24500CE", Exchange: "NFO", Quantity: -750, LotSize: 75},
		{Symbol: "BANKNIFTY24OCT52000CE", Exchange: "NFO", Quantity: -150, LotSize: 15},
	}

	reqs := PlanLiquidation(positions, LiquidationOptions{MaxLotsPerBatch: 20})
	require.Len(t, reqs, 2)
	for _, r := range reqs {
		assert.Equal(t, 10, r.TotalLots)
		require.Len(t, r.Legs, 1)
	}
	assert.Equal(t, 15, reqs[0].Legs[0].LotSize)
	assert.Equal(t, 75, reqs[1].Legs[0].LotSize)
}

func unsizedStrangle(gw *brokertest.Gateway, qty int) {
	for _, sym := range []string{"NIFTY24OCT24500CE", "NIFTY24OCT23500PE"} {
		gw.SetPosition(types.PositionSnapshot{Symbol: sym, Exchange: "NFO", Product: "NRML", Quantity: -qty})
	}
}

func TestLiquidate_ResolvesMissingLotSize(t *testing.T) {
	sess, ps, gw := newHarness()
	for _, sym := range []string{"NIFTY24OCT24500CE", "NIFTY24OCT23500PE"} {
		gw.Instruments[sym] = types.Instrument{Symbol: sym, Exchange: "NFO", LotSize: 75}
	}
	unsizedStrangle(gw, 45*75)
	x := New(gw, ps, WithSleeper(noSleep))

	runs, ok, err := Liquidate(context.Background(), gw, x,
		LiquidationOptions{MaxLotsPerBatch: 20, OrderType: "MARKET", Exchange: "NFO"})
	require.NoError(t, err)
	assert.True(t, ok)
	require.Len(t, runs, 1)
	assert.Equal(t, 3, runs[0].TotalBatches)

	orders := sess.Orders()
	require.Len(t, orders, 6)
	assert.Equal(t, 20*75, orders[0].Qty)
}

func TestLiquidate_UnknownLotSizeStops(t *testing.T) {
	sess, ps, gw := newHarness()
	unsizedStrangle(gw, 45*75)
	x := New(gw, ps, WithSleeper(noSleep))

	runs, ok, err := Liquidate(context.Background(), gw, x,
		LiquidationOptions{MaxLotsPerBatch: 20, OrderType: "MARKET", Exchange: "NFO"})
	assert.ErrorIs(t, err, ErrUnknownLotSize)
	assert.False(t, ok)
	assert.Empty(t, runs)
	assert.Empty(t, sess.Orders())
}

func TestExecute_FilledLotsCountsHedgedSize(t *testing.T) {
	sess, ps, gw := newHarness()
	sess.OnPlace = func(req types.OrderReq, batch int) error {
		if req.Symbol == "NIFTY24OCT23500PE" && batch == 2 {
			return broker.ErrRejected
		}
		return nil
	}
	x := New(gw, ps, WithSleeper(noSleep))

	sum, err := x.Execute(context.Background(), types.RunRequest{
		Mode: types.ModeOpen, TotalLots: 45, MaxLotsPerBatch: 20, Legs: strangleLegs(),
	})
	require.NoError(t, err)
	// CALL filled 45, PUT missed the second batch of 20
	assert.Equal(t, 25, sum.FilledLots())
}
