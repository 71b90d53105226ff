package sizing

import (
	"fmt"
	"sort"

	"mcube-trader/internal/types"

	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

// Params are the account-independent inputs of a sizing decision.
type Params struct {
	MarginFactor    float64   // SPAN margin as a fraction of notional
	MaxUtilization  float64   // fraction of max lots actually deployed
	LotSize         int       // contract multiplier
	AveragingPcts   []float64 // share of remaining balance per averaging attempt
	AveragingCapPct float64   // attempt lots capped at this share of lots already committed
	PremiumStepPct  float64   // premium discount per averaging attempt
}

func DefaultParams(lotSize int) Params {
	return Params{
		MarginFactor:    0.13,
		MaxUtilization:  0.5,
		LotSize:         lotSize,
		AveragingPcts:   []float64{20, 50, 50},
		AveragingCapPct: 50,
		PremiumStepPct:  10,
	}
}

// Input carries the market side of one sizing decision.
type Input struct {
	Margin         types.MarginSnapshot
	Spot           float64
	NotionalPerLot float64
	CallStrike     float64
	PutStrike      float64
	PremiumPerUnit float64 // combined call + put premium
	Supports       []float64
	Resistances    []float64
}

type Scenario struct {
	Label string  `json:"label"`
	Price float64 `json:"price"`
	PnL   float64 `json:"pnl"`
}

type LadderStep struct {
	Attempt           int     `json:"attempt"`
	AllocationPct     float64 `json:"allocation_pct"`
	Lots              int     `json:"lots"`
	Margin            float64 `json:"margin"`
	PremiumPerUnit    float64 `json:"premium_per_unit"`
	PremiumCollected  float64 `json:"premium_collected"`
	CumulativeLots    int     `json:"cumulative_lots"`
	CumulativeMargin  float64 `json:"cumulative_margin"`
	CumulativePremium float64 `json:"cumulative_premium"`
	RemainingMargin   float64 `json:"remaining_margin"`
}

type Result struct {
	MarginPerLot    float64      `json:"margin_per_lot"`
	MaxLotsPossible int          `json:"max_lots_possible"`
	RecommendedLots int          `json:"recommended_lots"`
	MarginAvailable bool         `json:"margin_available"`
	MarginRequired  float64      `json:"margin_required"`
	UpperBreakeven  float64      `json:"upper_breakeven"`
	LowerBreakeven  float64      `json:"lower_breakeven"`
	Scenarios       []Scenario   `json:"scenarios"`
	Ladder          []LadderStep `json:"ladder"`
}

type Sizer struct {
	p Params
}

func New(p Params) *Sizer {
	return &Sizer{p: p}
}

// Size converts a margin snapshot into a lot count plus the scenario table
// and averaging ladder for that lot count.
func (s *Sizer) Size(in Input) (Result, error) {
	if s.p.LotSize <= 0 {
		return Result{}, fmt.Errorf("lot size must be positive, got %d", s.p.LotSize)
	}
	if in.NotionalPerLot <= 0 {
		return Result{}, fmt.Errorf("notional per lot must be positive, got %.2f", in.NotionalPerLot)
	}

	perLot := MarginPerLot(in.NotionalPerLot, s.p.MarginFactor)
	maxLots := MaxLots(in.Margin.Available, perLot)
	lots := RecommendedLots(maxLots, s.p.MaxUtilization)

	res := Result{
		MarginPerLot:    perLot,
		MaxLotsPossible: maxLots,
		RecommendedLots: lots,
		MarginAvailable: maxLots > 0,
		MarginRequired:  decimal.NewFromFloat(perLot).Mul(decimal.NewFromInt(int64(lots))).Round(2).InexactFloat64(),
		UpperBreakeven:  in.CallStrike + in.PremiumPerUnit,
		LowerBreakeven:  in.PutStrike - in.PremiumPerUnit,
	}
	if lots == 0 {
		return res, nil
	}

	res.Scenarios = s.Scenarios(in, lots)
	res.Ladder = s.Ladder(in.Margin.Available, perLot, lots, in.PremiumPerUnit)
	return res, nil
}

func MarginPerLot(notionalPerLot, marginFactor float64) float64 {
	return decimal.NewFromFloat(notionalPerLot).
		Mul(decimal.NewFromFloat(marginFactor)).
		Round(2).
		InexactFloat64()
}

// MaxLots is floor(available / perLot), never negative.
func MaxLots(available, perLot float64) int {
	if available <= 0 || perLot <= 0 {
		return 0
	}
	return int(decimal.NewFromFloat(available).
		Div(decimal.NewFromFloat(perLot)).
		Floor().
		IntPart())
}

// RecommendedLots deploys a fraction of maxLots, with a floor of one lot
// whenever at least one lot is affordable.
func RecommendedLots(maxLots int, utilization float64) int {
	if maxLots <= 0 {
		return 0
	}
	n := int(decimal.NewFromInt(int64(maxLots)).
		Mul(decimal.NewFromFloat(utilization)).
		Floor().
		IntPart())
	if n < 1 {
		n = 1
	}
	if n > maxLots {
		n = maxLots
	}
	return n
}

// PayoffAt is the short strangle P&L at expiry for price.
func PayoffAt(price, callStrike, putStrike, premium float64, lots, lotSize int) float64 {
	p := decimal.NewFromFloat(price)
	loss := decimal.Max(decimal.Zero, p.Sub(decimal.NewFromFloat(callStrike))).
		Add(decimal.Max(decimal.Zero, decimal.NewFromFloat(putStrike).Sub(p)))
	return decimal.NewFromFloat(premium).
		Sub(loss).
		Mul(decimal.NewFromInt(int64(lots * lotSize))).
		Round(2).
		InexactFloat64()
}

func (s *Sizer) Scenarios(in Input, lots int) []Scenario {
	points := make([]Scenario, 0, len(in.Supports)+len(in.Resistances)+4)
	for i, p := range in.Supports {
		points = append(points, Scenario{Label: fmt.Sprintf("S%d", i+1), Price: p})
	}
	for i, p := range in.Resistances {
		points = append(points, Scenario{Label: fmt.Sprintf("R%d", i+1), Price: p})
	}
	if in.Spot > 0 {
		spot := decimal.NewFromFloat(in.Spot)
		points = append(points,
			Scenario{Label: "SPOT+5%", Price: spot.Mul(decimal.NewFromFloat(1.05)).Round(2).InexactFloat64()},
			Scenario{Label: "SPOT-5%", Price: spot.Mul(decimal.NewFromFloat(0.95)).Round(2).InexactFloat64()},
		)
	}
	points = append(points,
		Scenario{Label: "UPPER_BE", Price: in.CallStrike + in.PremiumPerUnit},
		Scenario{Label: "LOWER_BE", Price: in.PutStrike - in.PremiumPerUnit},
	)

	for i := range points {
		points[i].PnL = PayoffAt(points[i].Price, in.CallStrike, in.PutStrike, in.PremiumPerUnit, lots, s.p.LotSize)
	}
	sort.SliceStable(points, func(i, j int) bool { return points[i].Price < points[j].Price })
	return points
}

// Ladder plans the averaging attempts that follow an initial position of
// committedLots. Each attempt spends its share of what is left after the
// previous ones, capped relative to the lots already on.
func (s *Sizer) Ladder(available, perLot float64, committedLots int, premium float64) []LadderStep {
	if perLot <= 0 {
		return nil
	}
	per := decimal.NewFromFloat(perLot)
	lotSize := decimal.NewFromInt(int64(s.p.LotSize))
	remaining := decimal.NewFromFloat(available).Sub(per.Mul(decimal.NewFromInt(int64(committedLots))))
	committed := committedLots
	var cumMargin, cumPremium decimal.Decimal
	cumLots := 0

	steps := make([]LadderStep, 0, len(s.p.AveragingPcts))
	for i, pct := range s.p.AveragingPcts {
		attempt := i + 1
		lots := 0
		if remaining.Sign() > 0 {
			alloc := remaining.Mul(decimal.NewFromFloat(pct)).Div(hundred)
			lots = int(alloc.Div(per).Floor().IntPart())
		}
		capLots := int(decimal.NewFromInt(int64(committed)).
			Mul(decimal.NewFromFloat(s.p.AveragingCapPct)).Div(hundred).
			Floor().IntPart())
		if lots > capLots {
			lots = capLots
		}

		discount := one.Sub(decimal.NewFromFloat(s.p.PremiumStepPct).Div(hundred).Mul(decimal.NewFromInt(int64(attempt))))
		if discount.Sign() < 0 {
			discount = decimal.Zero
		}
		unitPremium := decimal.NewFromFloat(premium).Mul(discount)
		margin := per.Mul(decimal.NewFromInt(int64(lots)))
		collected := unitPremium.Mul(decimal.NewFromInt(int64(lots))).Mul(lotSize)

		remaining = remaining.Sub(margin)
		committed += lots
		cumLots += lots
		cumMargin = cumMargin.Add(margin)
		cumPremium = cumPremium.Add(collected)

		steps = append(steps, LadderStep{
			Attempt:           attempt,
			AllocationPct:     pct,
			Lots:              lots,
			Margin:            margin.Round(2).InexactFloat64(),
			PremiumPerUnit:    unitPremium.Round(2).InexactFloat64(),
			PremiumCollected:  collected.Round(2).InexactFloat64(),
			CumulativeLots:    cumLots,
			CumulativeMargin:  cumMargin.Round(2).InexactFloat64(),
			CumulativePremium: cumPremium.Round(2).InexactFloat64(),
			RemainingMargin:   remaining.Round(2).InexactFloat64(),
		})
	}
	return steps
}
