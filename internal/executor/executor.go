package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"mcube-trader/internal/interfaces"
	"mcube-trader/internal/logger"
	"mcube-trader/internal/metrics"
	"mcube-trader/internal/types"

	"github.com/google/uuid"
)

// Journal receives every leg placement attempt.
type Journal interface {
	RecordOrder(ctx context.Context, runKey string, mode types.RunMode, batch int, leg types.LegResult)
}

// Executor places a sized position as a sequence of capped batches. Legs of
// a batch run concurrently; batches run strictly in order.
type Executor struct {
	gw       interfaces.OrderGateway
	progress interfaces.ProgressStore
	journal  Journal
	sleep    func(ctx context.Context, d time.Duration) error
	now      func() time.Time
}

var _ interfaces.Executor = (*Executor)(nil)

type Option func(*Executor)

func WithJournal(j Journal) Option {
	return func(x *Executor) { x.journal = j }
}

// WithSleeper replaces the inter-batch wait.
func WithSleeper(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(x *Executor) { x.sleep = fn }
}

func New(gw interfaces.OrderGateway, progress interfaces.ProgressStore, opts ...Option) *Executor {
	x := &Executor{
		gw:       gw,
		progress: progress,
		sleep:    sleepCtx,
		now:      time.Now,
	}
	for _, o := range opts {
		o(x)
	}
	return x
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Execute runs req to a terminal state and always returns a summary, except
// when the gateway session cannot be opened; then nothing was placed and an
// *Error of kind AUTHENTICATION is returned.
func (x *Executor) Execute(ctx context.Context, req types.RunRequest) (*types.RunSummary, error) {
	if req.RunKey == "" {
		req.RunKey = uuid.NewString()
	}
	if req.Mode == "" {
		req.Mode = types.ModeOpen
	}

	sum := &types.RunSummary{
		RunKey:    req.RunKey,
		Mode:      req.Mode,
		Status:    types.RunPending,
		TotalLots: req.TotalLots,
		LegStats:  map[string]types.LegStats{},
		StartedAt: x.now(),
	}
	if err := validate(req); err != nil {
		return x.finish(ctx, sum, types.RunFailed, err.Error()), nil
	}

	sizes := BatchSizes(req.TotalLots, req.MaxLotsPerBatch)
	sum.TotalBatches = len(sizes)

	sess, err := x.gw.Login(ctx)
	if err != nil {
		logger.ErrorWithErr(ctx, "Gateway login failed, run aborted", err, "run_key", req.RunKey)
		metrics.RecordRun(string(req.Mode), string(types.RunFailed))
		return nil, &Error{Kind: types.ErrKindAuthentication, Op: "login", Err: err}
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			logger.Warn(ctx, "Gateway session close failed", "run_key", req.RunKey, "error", cerr)
		}
	}()

	sum.Status = types.RunRunning
	logger.Info(ctx, "Batch run started",
		"run_key", req.RunKey,
		"mode", req.Mode,
		"total_lots", req.TotalLots,
		"total_batches", sum.TotalBatches,
		"legs", len(req.Legs),
	)

	for i, lots := range sizes {
		n := i + 1

		if x.cancelRequested(ctx, req.RunKey) {
			return x.finish(ctx, sum, types.RunCancelled, fmt.Sprintf("cancelled before batch %d/%d", n, sum.TotalBatches)), nil
		}

		x.publish(ctx, sum, types.CurrentBatch{Number: n, Lots: lots, Quantity: lots * req.Legs[0].LotSize},
			fmt.Sprintf("executing batch %d/%d (%d lots)", n, sum.TotalBatches, lots))

		batch := x.runBatch(ctx, sess, req, n, lots)
		sum.Batches = append(sum.Batches, batch)
		sum.BatchesCompleted = n
		for _, leg := range batch.Legs {
			st := sum.LegStats[leg.Leg]
			if leg.Success {
				st.Success++
			} else {
				st.Failure++
			}
			sum.LegStats[leg.Leg] = st
		}
		metrics.RecordBatch(string(req.Mode), !batch.Failed())

		if batch.Failed() && req.Mode == types.ModeClose {
			return x.finish(ctx, sum, types.RunFailed, fmt.Sprintf("batch %d/%d failed, stopping close run", n, sum.TotalBatches)), nil
		}

		x.publish(ctx, sum, types.CurrentBatch{Number: n, Lots: lots},
			fmt.Sprintf("batch %d/%d done", n, sum.TotalBatches))

		if n == len(sizes) {
			break
		}
		if x.cancelRequested(ctx, req.RunKey) {
			return x.finish(ctx, sum, types.RunCancelled, fmt.Sprintf("cancelled after batch %d/%d", n, sum.TotalBatches)), nil
		}
		// the pre-batch check at the top of the loop covers the post-sleep poll
		if err := x.sleep(ctx, req.InterBatchDelay); err != nil {
			return x.finish(ctx, sum, types.RunCancelled, fmt.Sprintf("interrupted after batch %d/%d: %v", n, sum.TotalBatches, err)), nil
		}
	}

	failures := sum.Failures()
	switch {
	case failures == 0:
		return x.finish(ctx, sum, types.RunCompleted, "all batches completed"), nil
	case req.Mode == types.ModeOpen && sum.Filled():
		return x.finish(ctx, sum, types.RunCompleted, fmt.Sprintf("completed with %d failed legs", failures)), nil
	default:
		return x.finish(ctx, sum, types.RunFailed, fmt.Sprintf("no leg filled, %d failures", failures)), nil
	}
}

func validate(req types.RunRequest) error {
	if req.TotalLots <= 0 {
		return fmt.Errorf("total lots must be positive, got %d", req.TotalLots)
	}
	if len(req.Legs) == 0 {
		return fmt.Errorf("run has no legs")
	}
	if req.Mode != types.ModeOpen && req.Mode != types.ModeClose {
		return fmt.Errorf("unknown run mode %q", req.Mode)
	}
	for _, l := range req.Legs {
		if l.Symbol == "" || l.LotSize <= 0 {
			return fmt.Errorf("leg %q needs a symbol and a positive lot size", l.Name)
		}
		if l.Side != types.SideBuy && l.Side != types.SideSell {
			return fmt.Errorf("leg %q has invalid side %q", l.Name, l.Side)
		}
	}
	return nil
}

func (x *Executor) runBatch(ctx context.Context, sess interfaces.Session, req types.RunRequest, n, lots int) types.BatchResult {
	results := make([]types.LegResult, len(req.Legs))

	var wg sync.WaitGroup
	for i, leg := range req.Legs {
		wg.Add(1)
		go func(i int, leg types.LegSpec) {
			defer wg.Done()
			results[i] = x.placeLeg(ctx, sess, req, n, lots, leg)
		}(i, leg)
	}
	wg.Wait()

	return types.BatchResult{BatchNumber: n, Lots: lots, Legs: results}
}

func (x *Executor) placeLeg(ctx context.Context, sess interfaces.Session, req types.RunRequest, n, lots int, leg types.LegSpec) (res types.LegResult) {
	name := leg.Name
	if name == "" {
		name = leg.Symbol
	}
	res = types.LegResult{
		Leg:      name,
		Symbol:   leg.Symbol,
		Side:     leg.Side,
		Quantity: lots * leg.LotSize,
	}

	defer func() {
		if r := recover(); r != nil {
			res.Success = false
			res.ErrorKind = types.ErrKindUnknownBroker
			res.Error = "gateway panic"
			res.RawError = fmt.Sprint(r)
		}
		metrics.RecordOrder(string(req.Mode), name, res.Success)
		if x.journal != nil {
			x.journal.RecordOrder(ctx, req.RunKey, req.Mode, n, res)
		}
	}()

	resp, err := sess.PlaceOrder(ctx, types.OrderReq{
		Symbol:    leg.Symbol,
		Exchange:  leg.Exchange,
		Side:      leg.Side,
		Qty:       res.Quantity,
		Product:   leg.Product,
		OrderType: leg.OrderType,
		Tag:       req.Tag,
	})
	if err != nil {
		res.ErrorKind = Classify(err)
		if res.ErrorKind == types.ErrKindUnknownBroker {
			res.RawError = err.Error()
		}
		res.Error = err.Error()
		logger.Warn(ctx, "Leg order failed",
			"run_key", req.RunKey,
			"batch", n,
			"leg", name,
			"symbol", leg.Symbol,
			"error_kind", res.ErrorKind,
			"error", err,
		)
		return res
	}

	res.Success = true
	res.OrderID = resp.OrderID
	logger.Trade(ctx, leg.Symbol, leg.Side, res.Quantity, resp.OrderID,
		"run_key", req.RunKey,
		"batch", n,
		"leg", name,
	)
	return res
}

// cancelRequested treats a cancelled context like an explicit cancel. A
// failed read is logged and the run continues.
func (x *Executor) cancelRequested(ctx context.Context, runKey string) bool {
	if ctx.Err() != nil {
		return true
	}
	raw, ok, err := x.progress.Get(ctx, CancelKey(runKey))
	if err != nil {
		logger.Warn(ctx, "Cancel flag read failed", "run_key", runKey, "error", err)
		return false
	}
	return ok && len(raw) > 0 && string(raw) != "0"
}

func (x *Executor) publish(ctx context.Context, sum *types.RunSummary, cur types.CurrentBatch, msg string) {
	p := types.BatchProgress{
		RunKey:           sum.RunKey,
		Mode:             sum.Mode,
		Status:           sum.Status,
		BatchesCompleted: sum.BatchesCompleted,
		TotalBatches:     sum.TotalBatches,
		CurrentBatch:     cur,
		IsCancelled:      sum.Status == types.RunCancelled,
		IsComplete:       isTerminal(sum.Status),
		IsSuccess:        sum.Success,
		LastLogMessage:   msg,
		UpdatedAt:        x.now(),
	}
	b, err := json.Marshal(p)
	if err != nil {
		return
	}
	// progress is best effort; a write failure never stops a run
	if err := x.progress.Set(context.WithoutCancel(ctx), ProgressKey(sum.RunKey), b, ProgressTTL); err != nil {
		logger.Warn(ctx, "Progress write failed", "run_key", sum.RunKey, "error", err)
	}
}

func isTerminal(s types.RunStatus) bool {
	return s == types.RunCompleted || s == types.RunFailed || s == types.RunCancelled
}

func (x *Executor) finish(ctx context.Context, sum *types.RunSummary, status types.RunStatus, msg string) *types.RunSummary {
	sum.Status = status
	sum.Message = msg
	sum.FinishedAt = x.now()
	sum.Cancelled = status == types.RunCancelled
	sum.Success = status != types.RunFailed

	var cur types.CurrentBatch
	if sum.BatchesCompleted > 0 {
		last := sum.Batches[len(sum.Batches)-1]
		cur = types.CurrentBatch{Number: last.BatchNumber, Lots: last.Lots}
	}
	x.publish(ctx, sum, cur, msg)
	metrics.RecordRun(string(sum.Mode), string(status))

	fields := []any{
		"run_key", sum.RunKey,
		"mode", sum.Mode,
		"status", status,
		"batches_completed", sum.BatchesCompleted,
		"total_batches", sum.TotalBatches,
		"failures", sum.Failures(),
		"duration_ms", sum.FinishedAt.Sub(sum.StartedAt).Milliseconds(),
	}
	if status == types.RunFailed {
		logger.Warn(ctx, "Batch run failed: "+msg, fields...)
	} else {
		logger.Info(ctx, "Batch run finished: "+msg, fields...)
	}
	return sum
}
