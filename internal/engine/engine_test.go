package engine

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"mcube-trader/internal/broker"
	"mcube-trader/internal/broker/brokertest"
	"mcube-trader/internal/daycfg"
	"mcube-trader/internal/executor"
	"mcube-trader/internal/flags"
	"mcube-trader/internal/progress"
	"mcube-trader/internal/risk"
	"mcube-trader/internal/store"
	"mcube-trader/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock drives both the scheduler clock and its timers.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) func() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		active := !t.stopped && !t.fired
		t.stopped = true
		return active
	}
}

// AdvanceTo fires due timers in time order, moving the clock to each one.
func (c *fakeClock) AdvanceTo(target time.Time) {
	for {
		c.mu.Lock()
		var next *fakeTimer
		for _, t := range c.timers {
			if t.stopped || t.fired || t.at.After(target) {
				continue
			}
			if next == nil || t.at.Before(next.at) {
				next = t
			}
		}
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		next.fired = true
		if next.at.After(c.now) {
			c.now = next.at
		}
		c.mu.Unlock()
		next.f()
	}
}

type fakeEod struct {
	mu        sync.Mutex
	summaries []types.DaySummary
}

func (e *fakeEod) SummarizeDay(_ context.Context, s types.DaySummary) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.summaries = append(e.summaries, s)
	return "eod_" + s.Date + ".csv", nil
}

type harness struct {
	clock    *fakeClock
	cfg      *store.Config
	gw       *brokertest.Gateway
	flags    *flags.Store
	days     *daycfg.Repository
	notifier *brokertest.Notifier
	eod      *fakeEod
	s        *Scheduler
}

const (
	testDate   = "2024-10-01" // a Tuesday
	callSymbol = "NIFTY24OCT24250CE"
	putSymbol  = "NIFTY24OCT23750PE"
)

func at(t *testing.T, date, hhmm string) time.Time {
	t.Helper()
	tm, err := time.ParseInLocation(types.DateLayout+" 15:04", date+" "+hhmm, types.IST)
	require.NoError(t, err)
	return tm
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	cfg, err := store.ParseConfig([]byte("underlying: NIFTY\n"))
	require.NoError(t, err)

	fs, err := flags.Open(flags.OpenOptions{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = fs.Close() })

	days, err := daycfg.Open(filepath.Join(t.TempDir(), "trader.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = days.Close() })

	gw := brokertest.NewGateway()
	gw.Prices[cfg.SpotSymbol] = 24000
	gw.Prices[callSymbol] = 100
	gw.Prices[putSymbol] = 90
	gw.Instruments[callSymbol] = types.Instrument{Symbol: callSymbol, Exchange: "NFO", LotSize: 75}
	gw.Instruments[putSymbol] = types.Instrument{Symbol: putSymbol, Exchange: "NFO", LotSize: 75}
	gw.Margin = types.MarginSnapshot{Available: 2_000_000}

	exec := executor.New(gw, progress.NewMemoryStore(0),
		executor.WithSleeper(func(context.Context, time.Duration) error { return nil }))
	n := &brokertest.Notifier{}
	gate := risk.New(gw, exec, fs, n,
		risk.Thresholds{StopLoss: cfg.Risk.StopLossLimit, Target: cfg.Risk.MinDailyProfitTarget, Materiality: cfg.Risk.AlertMateriality},
		executor.LiquidationOptions{MaxLotsPerBatch: cfg.Execution.MaxLotsPerBatch, OrderType: cfg.Execution.OrderType})

	clock := &fakeClock{now: at(t, testDate, "08:00")}
	eod := &fakeEod{}
	s := New(Deps{
		Config:   cfg,
		Gateway:  gw,
		Executor: exec,
		Risk:     gate,
		Flags:    fs,
		Days:     days,
		Notifier: n,
		Eod:      eod,
	}, WithClock(clock.Now), withAfterFunc(clock.AfterFunc))

	return &harness{clock: clock, cfg: cfg, gw: gw, flags: fs, days: days, notifier: n, eod: eod, s: s}
}

func (h *harness) openStrangle(lots int) {
	for _, sym := range []string{callSymbol, putSymbol} {
		h.gw.SetPosition(types.PositionSnapshot{Symbol: sym, Exchange: "NFO", Product: "NRML", Quantity: -lots * 75, LotSize: 75})
	}
	_ = flags.SetBool(context.Background(), h.flags, flags.OpenPositions, true)
}

func TestStateAt(t *testing.T) {
	cfg := types.DefaultDayConfig(testDate)

	cases := []struct {
		hhmm string
		want types.DayState
	}{
		{"08:45", types.StateSetup},
		{"09:39", types.StateSetup},
		{"09:40", types.StateEntryWindow},
		{"10:14", types.StateEntryWindow},
		{"10:15", types.StateMonitoring},
		{"15:15", types.StateClosingWindow},
		{"15:30", types.StateAnalysis},
		{"15:45", types.StateAnalysis},
		{"15:46", types.StateDone},
	}
	for _, c := range cases {
		got, err := StateAt(cfg, at(t, testDate, c.hhmm), true)
		require.NoError(t, err)
		assert.Equal(t, c.want, got, c.hhmm)
	}

	got, err := StateAt(cfg, at(t, testDate, "11:00"), false)
	require.NoError(t, err)
	assert.Equal(t, types.StateDisabled, got)

	cfg.Enabled = false
	got, err = StateAt(cfg, at(t, testDate, "11:00"), true)
	require.NoError(t, err)
	assert.Equal(t, types.StateDisabled, got)
}

func TestSetup_TradableDay(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.clock.Set(at(t, testDate, "09:15"))

	res := h.s.RunSetupPhase(ctx, at(t, testDate, "00:00"))

	assert.Equal(t, types.PhaseOK, res.Status, res.Message)
	assert.True(t, h.flags.GetBool(ctx, flags.IsDayTradable, false))
	assert.Equal(t, 0.88, h.flags.GetFloat(ctx, flags.DailyDelta, 0))

	cfg, err := h.days.GetOrCreate(ctx, testDate)
	require.NoError(t, err)
	assert.True(t, cfg.Started())
}

func TestSetup_NonTradableDays(t *testing.T) {
	cases := []struct {
		name   string
		date   string
		flags  map[string]string
		reason string
	}{
		{"weekend", "2024-10-05", nil, "weekend"},
		{"major event", testDate, map[string]string{flags.MajorEventDay: "true"}, "major event day"},
		{"vix too high", testDate, map[string]string{flags.IndiaVIX: "30"}, "VIX 30.00 outside"},
		{"vix too low", testDate, map[string]string{flags.IndiaVIX: "8"}, "VIX 8.00 outside"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()
			for k, v := range c.flags {
				require.NoError(t, h.flags.Set(ctx, k, v, ""))
			}

			res := h.s.RunSetupPhase(ctx, at(t, c.date, "00:00"))

			assert.Equal(t, types.PhaseOK, res.Status)
			assert.False(t, h.flags.GetBool(ctx, flags.IsDayTradable, true))
			assert.Contains(t, h.flags.Get(ctx, flags.SetupReason, ""), c.reason)
		})
	}
}

func TestSetup_VIXDrivesDailyDelta(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, flags.SetFloat(ctx, h.flags, flags.IndiaVIX, 20))

	h.s.RunSetupPhase(ctx, at(t, testDate, "00:00"))
	assert.Equal(t, 1.26, h.flags.GetFloat(ctx, flags.DailyDelta, 0))
}

func TestSetup_LiveVIXQuote(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.gw.Prices[h.cfg.Setup.VIXSymbol] = 20

	h.s.RunSetupPhase(ctx, at(t, testDate, "00:00"))
	assert.Equal(t, 1.26, h.flags.GetFloat(ctx, flags.DailyDelta, 0))

	// an operator override wins over the quote
	require.NoError(t, flags.SetFloat(ctx, h.flags, flags.IndiaVIX, 14))
	h.s.RunSetupPhase(ctx, at(t, testDate, "00:00"))
	assert.Equal(t, 0.88, h.flags.GetFloat(ctx, flags.DailyDelta, 0))
}

func TestPhases_DisabledByKillSwitch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, flags.SetBool(ctx, h.flags, flags.AutoTradingEnabled, false))
	h.clock.Set(at(t, testDate, "09:45"))

	results := []types.PhaseResult{
		h.s.RunSetupPhase(ctx, at(t, testDate, "00:00")),
		h.s.RunEntryPhase(ctx),
		h.s.RunMonitoringPhase(ctx),
		h.s.RunClosingPhase(ctx),
		h.s.RunAnalysisPhase(ctx),
	}
	for _, r := range results {
		assert.Equal(t, types.PhaseDisabled, r.Status, r.Phase)
	}
	assert.Empty(t, h.gw.Session().Orders())
}

func TestPhases_DisabledDay(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	cfg := types.DefaultDayConfig(testDate)
	cfg.Enabled = false
	require.NoError(t, h.days.Save(ctx, cfg, false))
	h.clock.Set(at(t, testDate, "09:45"))

	assert.Equal(t, types.PhaseDisabled, h.s.RunEntryPhase(ctx).Status)
}

func readyForEntry(t *testing.T, h *harness) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, flags.SetBool(ctx, h.flags, flags.IsDayTradable, true))
	require.NoError(t, flags.SetFloat(ctx, h.flags, flags.DailyDelta, 1))
	require.NoError(t, h.flags.Set(ctx, flags.ExpiryCode, "24OCT", ""))
	h.clock.Set(at(t, testDate, "09:45"))
}

func TestEntry_OpensShortStrangle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	readyForEntry(t, h)

	res := h.s.RunEntryPhase(ctx)
	require.Equal(t, types.PhaseOK, res.Status, res.Message)

	orders := h.gw.Session().Orders()
	require.Len(t, orders, 2)
	for _, o := range orders {
		assert.Equal(t, types.SideSell, o.Side)
		// 2,000,000 / (24000*75*0.13) = 8 lots affordable, half deployed
		assert.Equal(t, 4*75, o.Qty)
		assert.Equal(t, "ENTRY", o.Tag)
	}

	assert.True(t, h.flags.GetBool(ctx, flags.OpenPositions, false))
	assert.Equal(t, 4, h.flags.GetInt(ctx, flags.EntryLots, 0))
	assert.Equal(t, 190.0, h.flags.GetFloat(ctx, flags.EntryPremium, 0))
	assert.Equal(t, callSymbol, h.flags.Get(ctx, flags.CallSymbol, ""))
	assert.Equal(t, putSymbol, h.flags.Get(ctx, flags.PutSymbol, ""))
	assert.NotEmpty(t, h.flags.Get(ctx, flags.LastRunKey, ""))

	again := h.s.RunEntryPhase(ctx)
	assert.Equal(t, types.PhaseSkipped, again.Status)
	assert.Len(t, h.gw.Session().Orders(), 2)
}

func TestEntry_InsufficientMarginNotifies(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	readyForEntry(t, h)
	h.gw.Margin = types.MarginSnapshot{}

	res := h.s.RunEntryPhase(ctx)

	assert.Equal(t, types.PhaseSkipped, res.Status)
	assert.Contains(t, res.Message, "insufficient margin")
	assert.Empty(t, h.gw.Session().Orders())
	require.Len(t, h.notifier.Messages(), 1)
	assert.Contains(t, h.notifier.Messages()[0], "insufficient margin")
	assert.False(t, h.flags.GetBool(ctx, flags.OpenPositions, false))
}

func TestEntry_SkipsOutsideWindowOrUntradable(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	readyForEntry(t, h)

	h.clock.Set(at(t, testDate, "10:30"))
	assert.Equal(t, types.PhaseSkipped, h.s.RunEntryPhase(ctx).Status)

	h.clock.Set(at(t, testDate, "09:45"))
	require.NoError(t, flags.SetBool(ctx, h.flags, flags.IsDayTradable, false))
	assert.Equal(t, types.PhaseSkipped, h.s.RunEntryPhase(ctx).Status)

	assert.Empty(t, h.gw.Session().Orders())
}

func TestEntry_MissingExpiryCodeFails(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	readyForEntry(t, h)
	require.NoError(t, h.flags.Set(ctx, flags.ExpiryCode, "", ""))

	res := h.s.RunEntryPhase(ctx)
	assert.Equal(t, types.PhaseFailed, res.Status)
	assert.Contains(t, res.Message, "expiry code")
}

func TestEntry_AllLegsRejectedFails(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	readyForEntry(t, h)
	h.gw.Session().OnPlace = func(types.OrderReq, int) error { return broker.ErrRejected }

	res := h.s.RunEntryPhase(ctx)
	assert.Equal(t, types.PhaseFailed, res.Status)
	assert.False(t, h.flags.GetBool(ctx, flags.OpenPositions, false))
}

func TestMonitoring_BreachLiquidates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.openStrangle(4)
	h.gw.SetPnL(-26000)
	h.clock.Set(at(t, testDate, "11:00"))

	res := h.s.RunMonitoringPhase(ctx)

	assert.Equal(t, types.PhaseOK, res.Status, res.Message)
	assert.Contains(t, res.Message, "positions closed")
	assert.False(t, h.flags.GetBool(ctx, flags.OpenPositions, true))
	positions, err := h.gw.FetchPositions(ctx)
	require.NoError(t, err)
	assert.Empty(t, positions)
}

func TestMonitoring_SkipsWithoutPosition(t *testing.T) {
	h := newHarness(t)
	h.clock.Set(at(t, testDate, "11:00"))
	assert.Equal(t, types.PhaseSkipped, h.s.RunMonitoringPhase(context.Background()).Status)
}

func TestMonitoring_GatewayErrorFailsPhase(t *testing.T) {
	h := newHarness(t)
	h.openStrangle(2)
	h.gw.PnLErr = assert.AnError
	h.clock.Set(at(t, testDate, "11:00"))

	res := h.s.RunMonitoringPhase(context.Background())
	assert.Equal(t, types.PhaseFailed, res.Status)
}

type panicGate struct{}

func (panicGate) Evaluate(context.Context) (types.RiskVerdict, error) {
	panic("risk gate exploded")
}

func TestMonitoring_PanicIsContained(t *testing.T) {
	h := newHarness(t)
	h.openStrangle(2)
	h.s.risk = panicGate{}
	h.clock.Set(at(t, testDate, "11:00"))

	res := h.s.RunMonitoringPhase(context.Background())
	assert.Equal(t, types.PhaseFailed, res.Status)
	assert.Contains(t, res.Message, "risk gate exploded")
}

func TestClosing_Triggers(t *testing.T) {
	cases := []struct {
		name   string
		hhmm   string
		pnl    float64
		expiry string
		status types.PhaseStatus
		reason string
	}{
		{"holding", "15:16", 2000, "2024-10-03", types.PhaseSkipped, "holding"},
		{"target", "15:16", 12000, "", types.PhaseOK, "profit target"},
		{"expiry day", "15:16", 0, testDate, types.PhaseOK, "expiry day"},
		{"hard cutoff", "15:20", 0, "", types.PhaseOK, "hard cutoff 15:20"},
		{"outside window", "14:00", 50000, "", types.PhaseSkipped, "outside"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()
			h.openStrangle(45)
			h.gw.SetPnL(c.pnl)
			if c.expiry != "" {
				require.NoError(t, h.flags.Set(ctx, flags.ExpiryDate, c.expiry, ""))
			}
			h.clock.Set(at(t, testDate, c.hhmm))

			res := h.s.RunClosingPhase(ctx)

			assert.Equal(t, c.status, res.Status, res.Message)
			assert.Contains(t, res.Message, c.reason)
			if c.status == types.PhaseOK {
				assert.False(t, h.flags.GetBool(ctx, flags.OpenPositions, true))
				// 45 lots at 20 per batch, two legs
				assert.Len(t, h.gw.Session().Orders(), 6)
			} else {
				assert.True(t, h.flags.GetBool(ctx, flags.OpenPositions, false))
				assert.Empty(t, h.gw.Session().Orders())
			}
		})
	}
}

func TestClosing_IncompleteKeepsOpenFlag(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.openStrangle(45)
	h.gw.Session().OnPlace = func(req types.OrderReq, batch int) error {
		if req.Symbol == putSymbol && batch == 2 {
			return broker.ErrRejected
		}
		return nil
	}
	h.clock.Set(at(t, testDate, "15:25"))

	res := h.s.RunClosingPhase(ctx)

	assert.Equal(t, types.PhaseFailed, res.Status)
	assert.True(t, h.flags.GetBool(ctx, flags.OpenPositions, false))
	// fail-fast: no third batch
	assert.Len(t, h.gw.Session().Orders(), 4)
	assert.Contains(t, h.notifier.Messages()[0], "manual action")
}

func TestAnalysis_PersistsSummaryAndResetsFlags(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.gw.SetPnL(4200)
	for _, name := range flags.Transient {
		require.NoError(t, h.flags.Set(ctx, name, "true", ""))
	}
	require.NoError(t, h.flags.Set(ctx, flags.SetupReason, "tradable, VIX 14.00", ""))
	h.clock.Set(at(t, testDate, "15:45"))

	res := h.s.RunAnalysisPhase(ctx)
	require.Equal(t, types.PhaseOK, res.Status, res.Message)

	s, found, err := h.days.Summary(ctx, testDate)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 4200.0, s.PnL)
	assert.True(t, s.Closed)
	assert.Contains(t, s.Note, "tradable")

	require.Len(t, h.eod.summaries, 1)
	assert.Equal(t, testDate, h.eod.summaries[0].Date)

	for _, name := range flags.Transient {
		assert.Equal(t, "", h.flags.Get(ctx, name, ""), name)
	}
}

func TestAnalysis_SkipsWhileMarketOpen(t *testing.T) {
	h := newHarness(t)
	h.clock.Set(at(t, testDate, "15:00"))
	assert.Equal(t, types.PhaseSkipped, h.s.RunAnalysisPhase(context.Background()).Status)
}

func TestInstallDailyJob_RunsTheDay(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.cfg.Schedule.EntryIntervalSec = 3600
	h.cfg.Schedule.MonitorIntervalSec = 3600
	h.cfg.Schedule.ClosingIntervalSec = 3600

	require.NoError(t, h.s.InstallDailyJob(ctx))
	want := []string{"analysis", "closing", "entry", "master", "monitoring", "setup"}
	assert.Equal(t, want, h.s.JobNames())

	// reinstalling replaces rather than duplicates
	require.NoError(t, h.s.InstallDailyJob(ctx))
	assert.Equal(t, want, h.s.JobNames())

	h.clock.AdvanceTo(at(t, testDate, "09:16"))
	assert.True(t, h.flags.GetBool(ctx, flags.IsDayTradable, false))
	assert.NotContains(t, h.s.JobNames(), "setup")

	h.clock.AdvanceTo(at(t, testDate, "15:50"))
	_, found, err := h.days.Summary(ctx, testDate)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []string{"master"}, h.s.JobNames())

	// the master job installs the next day
	h.clock.AdvanceTo(at(t, "2024-10-02", "08:46"))
	assert.Equal(t, want, h.s.JobNames())

	h.s.Stop()
	assert.Empty(t, h.s.JobNames())
}

func TestInstallDailyJob_AfterCloseInstallsOnlyMaster(t *testing.T) {
	h := newHarness(t)
	h.clock.Set(at(t, testDate, "18:00"))

	require.NoError(t, h.s.InstallDailyJob(context.Background()))
	assert.Equal(t, []string{"master"}, h.s.JobNames())
}

func TestJobRunner_EveryStopsAtCutoff(t *testing.T) {
	clock := &fakeClock{now: at(t, testDate, "09:00")}
	r := newJobRunner(clock.Now, clock.AfterFunc)

	var fired []string
	r.Every("tick", at(t, testDate, "09:10"), at(t, testDate, "09:12"), time.Minute, func() {
		fired = append(fired, clock.Now().Format("15:04"))
	})
	clock.AdvanceTo(at(t, testDate, "10:00"))

	assert.Equal(t, []string{"09:10", "09:11", "09:12"}, fired)
	assert.Empty(t, r.Names())
}

func TestJobRunner_ReplaceCancelsPrevious(t *testing.T) {
	clock := &fakeClock{now: at(t, testDate, "09:00")}
	r := newJobRunner(clock.Now, clock.AfterFunc)

	var first, second int
	r.At("job", at(t, testDate, "09:05"), func() { first++ })
	r.At("job", at(t, testDate, "09:06"), func() { second++ })
	clock.AdvanceTo(at(t, testDate, "09:10"))

	assert.Equal(t, 0, first)
	assert.Equal(t, 1, second)
}

func TestPlanner_StrikesFromDailyMove(t *testing.T) {
	gw := brokertest.NewGateway()
	gw.Prices["NSE:NIFTY 50"] = 24010
	gw.Prices["NIFTY24OCT24300CE"] = 40
	gw.Prices["NIFTY24OCT23700PE"] = 35
	gw.Instruments["NIFTY24OCT24300CE"] = types.Instrument{LotSize: 75}
	gw.Instruments["NIFTY24OCT23700PE"] = types.Instrument{LotSize: 75}

	p := NewEntryPlanner(gw, "NIFTY", "NSE:NIFTY 50", 100)
	plan, err := p.Plan(context.Background(), 1.2, "24OCT")
	require.NoError(t, err)

	// 24010 * 1.012 = 24298.12 rounds up, 24010 * 0.988 = 23721.88 rounds down
	assert.Equal(t, 24300.0, plan.CallStrike)
	assert.Equal(t, 23700.0, plan.PutStrike)
	assert.Equal(t, 75.0, plan.PremiumPerUnit())
	assert.Equal(t, 24010.0*75, plan.NotionalPerLot())

	_, err = p.Plan(context.Background(), 0, "24OCT")
	assert.Error(t, err)
}

func TestDaysToExpiry(t *testing.T) {
	now := at(t, testDate, "15:00")
	d, err := daysToExpiry(now, "2024-10-03")
	require.NoError(t, err)
	assert.Equal(t, 2, d)

	d, err = daysToExpiry(now, testDate)
	require.NoError(t, err)
	assert.Equal(t, 0, d)

	_, err = daysToExpiry(now, "3 Oct")
	assert.Error(t, err)
}

func TestSizeEntry_PlansWithoutTrading(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.clock.Set(at(t, testDate, "09:00"))
	require.NoError(t, h.flags.Set(ctx, flags.ExpiryCode, "24OCT", ""))

	plan, margin, size, err := h.s.SizeEntry(ctx)
	require.NoError(t, err)

	assert.Equal(t, callSymbol, plan.CallSymbol)
	assert.Equal(t, putSymbol, plan.PutSymbol)
	assert.Equal(t, 190.0, plan.PremiumPerUnit())
	assert.Equal(t, 2_000_000.0, margin.Available)
	assert.Equal(t, 4, size.RecommendedLots)
	assert.Empty(t, h.gw.Session().Orders())
}

func TestEntry_RecordsFilledLotsOnPartialFill(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	readyForEntry(t, h)
	h.cfg.Execution.MaxLotsPerBatch = 1
	h.gw.Session().OnPlace = func(req types.OrderReq, batch int) error {
		if req.Symbol == putSymbol && batch == 3 {
			return broker.ErrRejected
		}
		return nil
	}

	res := h.s.RunEntryPhase(ctx)
	require.Equal(t, types.PhaseOK, res.Status, res.Message)

	assert.Len(t, h.gw.Session().Orders(), 8)
	assert.Equal(t, 3, h.flags.GetInt(ctx, flags.EntryLots, 0))
	assert.Contains(t, res.Message, "sold 3 of 4 lots")
}

func TestClosing_UnknownLotSizeFailsWithoutOrders(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.openStrangle(45)
	for _, sym := range []string{callSymbol, putSymbol} {
		h.gw.SetPosition(types.PositionSnapshot{Symbol: sym, Exchange: "NFO", Product: "NRML", Quantity: -45 * 75})
	}
	delete(h.gw.Instruments, callSymbol)
	h.clock.Set(at(t, testDate, "15:25"))

	res := h.s.RunClosingPhase(ctx)

	assert.Equal(t, types.PhaseFailed, res.Status)
	assert.Empty(t, h.gw.Session().Orders())
	assert.True(t, h.flags.GetBool(ctx, flags.OpenPositions, false))
	require.NotEmpty(t, h.notifier.Messages())
	assert.Contains(t, h.notifier.Messages()[0], "manual action")
}

func TestClosing_ResolvesMissingLotSize(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.openStrangle(45)
	for _, sym := range []string{callSymbol, putSymbol} {
		h.gw.SetPosition(types.PositionSnapshot{Symbol: sym, Exchange: "NFO", Product: "NRML", Quantity: -45 * 75})
	}
	h.clock.Set(at(t, testDate, "15:25"))

	res := h.s.RunClosingPhase(ctx)

	require.Equal(t, types.PhaseOK, res.Status, res.Message)
	assert.Len(t, h.gw.Session().Orders(), 6)
}
