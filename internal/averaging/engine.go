package averaging

import (
	"context"
	"fmt"
	"math"
	"strings"

	"mcube-trader/internal/logger"
	"mcube-trader/internal/metrics"
	"mcube-trader/internal/ta"
	"mcube-trader/internal/types"

	"github.com/shopspring/decimal"
)

const (
	CheckPriceMove    = "price_movement"
	CheckSupportRes   = "support_resistance"
	CheckLiquidity    = "liquidity"
	CheckTrend        = "trend_health"
	CheckVolume       = "volume"
	CheckSector       = "sector_strength"
	CheckVolatility   = "volatility"
	defaultMovePct    = 1.5
	defaultVolumeRate = 0.8
)

var indexSymbols = map[string]bool{
	"NIFTY":      true,
	"BANKNIFTY":  true,
	"FINNIFTY":   true,
	"MIDCPNIFTY": true,
	"SENSEX":     true,
	"BANKEX":     true,
}

type Points struct {
	PriceMove  int
	SupportRes int
	Liquidity  int
	Trend      int
	Volume     int
	Sector     int
	Volatility int
}

type Params struct {
	MinMovePct        float64
	IndexOIFloor      float64
	StockOIFloor      float64
	MinVolumeRatio    float64
	SectorThreshold   float64
	MaxVolatilityPct  float64
	StrongThreshold   int
	ModerateThreshold int
	Points            Points
}

func DefaultParams() Params {
	return Params{
		MinMovePct:        defaultMovePct,
		IndexOIFloor:      100000,
		StockOIFloor:      25000,
		MinVolumeRatio:    defaultVolumeRate,
		SectorThreshold:   50,
		MaxVolatilityPct:  3.0,
		StrongThreshold:   70,
		ModerateThreshold: 50,
		Points: Points{
			PriceMove:  30,
			SupportRes: 30,
			Liquidity:  0,
			Trend:      15,
			Volume:     10,
			Sector:     10,
			Volatility: 5,
		},
	}
}

type Position struct {
	Symbol     string
	Direction  types.Direction
	EntryPrice float64
	Lots       int
}

// Market is the live structure around a position. Zero values for the soft
// inputs mean "not known" and fail the corresponding check.
type Market struct {
	CurrentPrice  float64
	Supports      []float64
	Resistances   []float64
	OpenInterest  float64
	IsIndex       bool
	DMA20         float64
	DMA50         float64
	Closes        []float64
	Highs         []float64
	Lows          []float64
	Volume        float64
	AvgVolume     float64
	SectorScore   float64
	HasSector     bool
	VolatilityPct float64
}

type Engine struct {
	p Params
}

func New(p Params) *Engine {
	return &Engine{p: p}
}

// Evaluate runs every check and converts the score into a recommendation.
// Any failed critical check forces NO_AVERAGE whatever the score.
func (e *Engine) Evaluate(ctx context.Context, pos Position, mkt Market) types.AveragingRecommendation {
	checks := []types.CheckResult{
		e.checkPriceMove(pos, mkt),
		e.checkSupportResistance(pos, mkt),
		e.checkLiquidity(pos, mkt),
		e.checkTrend(pos, mkt),
		e.checkVolume(mkt),
		e.checkSector(pos, mkt),
		e.checkVolatility(mkt),
	}

	rec := types.AveragingRecommendation{
		Symbol:       pos.Symbol,
		Direction:    pos.Direction,
		EntryPrice:   pos.EntryPrice,
		CurrentPrice: mkt.CurrentPrice,
		Checks:       checks,
	}

	var failedCritical, passed []string
	for _, c := range checks {
		if c.Passed {
			rec.Confidence += c.Points
			passed = append(passed, c.Name)
		} else if c.Critical {
			failedCritical = append(failedCritical, c.Message)
		}
	}

	switch {
	case len(failedCritical) > 0:
		rec.Recommendation = types.NoAverage
		rec.Reason = strings.Join(failedCritical, "; ")
	case rec.Confidence >= e.p.StrongThreshold:
		rec.Recommendation = types.StrongAverage
	case rec.Confidence >= e.p.ModerateThreshold:
		rec.Recommendation = types.ModerateAverage
	default:
		rec.Recommendation = types.WeakAverage
	}
	if rec.Reason == "" {
		rec.Reason = fmt.Sprintf("confidence %d from %s", rec.Confidence, strings.Join(passed, ", "))
	}
	rec.SuggestedAdditionalLots = suggestedLots(rec.Recommendation, pos.Lots)

	metrics.RecordRecommendation(string(rec.Recommendation))
	logger.Decision(ctx, pos.Symbol, string(rec.Recommendation), float64(rec.Confidence), rec.Reason,
		"direction", pos.Direction,
		"entry_price", pos.EntryPrice,
		"current_price", mkt.CurrentPrice,
		"suggested_lots", rec.SuggestedAdditionalLots,
	)
	return rec
}

func suggestedLots(r types.Recommendation, lots int) int {
	var pct int
	switch r {
	case types.StrongAverage:
		pct = 50
	case types.ModerateAverage:
		pct = 25
	default:
		return 0
	}
	n := lots * pct / 100
	if n < 1 {
		n = 1
	}
	return n
}

// MovePercent is the adverse move from entry in percent: a drop for LONG,
// a rise for SHORT. Computed in decimal so boundary values compare exactly.
func MovePercent(dir types.Direction, entry, current float64) decimal.Decimal {
	if entry == 0 {
		return decimal.Zero
	}
	e := decimal.NewFromFloat(entry)
	c := decimal.NewFromFloat(current)
	diff := e.Sub(c)
	if dir == types.Short {
		diff = c.Sub(e)
	}
	return diff.Div(e).Mul(decimal.NewFromInt(100))
}

func (e *Engine) checkPriceMove(pos Position, mkt Market) types.CheckResult {
	move := MovePercent(pos.Direction, pos.EntryPrice, mkt.CurrentPrice)
	threshold := decimal.NewFromFloat(e.p.MinMovePct)
	ok := move.GreaterThanOrEqual(threshold)
	msg := fmt.Sprintf("adverse move %s%% meets %s%% minimum", move.Round(2), threshold)
	if !ok {
		msg = fmt.Sprintf("adverse move %s%% below %s%% minimum", move.Round(2), threshold)
	}
	return result(CheckPriceMove, true, ok, e.p.Points.PriceMove, msg)
}

func nearestDistance(levels []float64, price float64) float64 {
	best := math.Inf(1)
	for _, l := range levels {
		if d := math.Abs(price - l); d < best {
			best = d
		}
	}
	return best
}

func (e *Engine) checkSupportResistance(pos Position, mkt Market) types.CheckResult {
	ds := nearestDistance(mkt.Supports, mkt.CurrentPrice)
	dr := nearestDistance(mkt.Resistances, mkt.CurrentPrice)

	near, far, want := ds, dr, "support"
	if pos.Direction == types.Short {
		near, far, want = dr, ds, "resistance"
	}
	if math.IsInf(near, 1) {
		return result(CheckSupportRes, true, false, e.p.Points.SupportRes, "no "+want+" levels known")
	}
	ok := near < far
	msg := fmt.Sprintf("price nearer %s (%.2f vs %.2f)", want, near, far)
	if !ok {
		msg = fmt.Sprintf("price not nearer %s (%.2f vs %.2f)", want, near, far)
	}
	return result(CheckSupportRes, true, ok, e.p.Points.SupportRes, msg)
}

func (e *Engine) checkLiquidity(pos Position, mkt Market) types.CheckResult {
	floor := e.p.StockOIFloor
	if mkt.IsIndex || indexSymbols[strings.ToUpper(pos.Symbol)] {
		floor = e.p.IndexOIFloor
	}
	ok := mkt.OpenInterest > floor
	msg := fmt.Sprintf("open interest %.0f above floor %.0f", mkt.OpenInterest, floor)
	if !ok {
		msg = fmt.Sprintf("open interest %.0f not above floor %.0f", mkt.OpenInterest, floor)
	}
	return result(CheckLiquidity, true, ok, e.p.Points.Liquidity, msg)
}

func (e *Engine) checkTrend(pos Position, mkt Market) types.CheckResult {
	fast, slow := mkt.DMA20, mkt.DMA50
	if fast == 0 || slow == 0 {
		fast, slow = ta.SMA(mkt.Closes, 20), ta.SMA(mkt.Closes, 50)
	}
	if math.IsNaN(fast) || math.IsNaN(slow) || fast == 0 || slow == 0 {
		return result(CheckTrend, false, false, e.p.Points.Trend, "moving averages unavailable")
	}
	ok := fast >= slow
	if pos.Direction == types.Short {
		ok = fast <= slow
	}
	return result(CheckTrend, false, ok, e.p.Points.Trend, fmt.Sprintf("DMA20 %.2f vs DMA50 %.2f", fast, slow))
}

func (e *Engine) checkVolume(mkt Market) types.CheckResult {
	if mkt.AvgVolume <= 0 {
		return result(CheckVolume, false, false, e.p.Points.Volume, "average volume unavailable")
	}
	ratio := mkt.Volume / mkt.AvgVolume
	return result(CheckVolume, false, ratio >= e.p.MinVolumeRatio, e.p.Points.Volume,
		fmt.Sprintf("volume at %.0f%% of average", ratio*100))
}

func (e *Engine) checkSector(pos Position, mkt Market) types.CheckResult {
	if !mkt.HasSector {
		return result(CheckSector, false, false, e.p.Points.Sector, "sector score unavailable")
	}
	ok := mkt.SectorScore >= e.p.SectorThreshold
	if pos.Direction == types.Short {
		ok = mkt.SectorScore <= e.p.SectorThreshold
	}
	return result(CheckSector, false, ok, e.p.Points.Sector, fmt.Sprintf("sector score %.1f", mkt.SectorScore))
}

func (e *Engine) checkVolatility(mkt Market) types.CheckResult {
	vol := mkt.VolatilityPct
	if vol == 0 {
		vol = ta.ATRPercent(mkt.Highs, mkt.Lows, mkt.Closes, 14)
	}
	if math.IsNaN(vol) || vol <= 0 {
		return result(CheckVolatility, false, false, e.p.Points.Volatility, "volatility unavailable")
	}
	return result(CheckVolatility, false, vol <= e.p.MaxVolatilityPct, e.p.Points.Volatility,
		fmt.Sprintf("volatility %.2f%% vs max %.2f%%", vol, e.p.MaxVolatilityPct))
}

func result(name string, critical, passed bool, points int, msg string) types.CheckResult {
	return types.CheckResult{Name: name, Critical: critical, Passed: passed, Points: points, Message: msg}
}
