package engine

import (
	"context"
	"errors"
	"fmt"

	"mcube-trader/internal/interfaces"
	"mcube-trader/internal/types"
)

// EntryPlan is the short strangle the entry phase intends to open.
type EntryPlan struct {
	Spot       float64 `json:"spot"`
	CallStrike float64 `json:"call_strike"`
	PutStrike  float64 `json:"put_strike"`
	CallSymbol string  `json:"call_symbol"`
	PutSymbol  string  `json:"put_symbol"`
	CallLTP    float64 `json:"call_ltp"`
	PutLTP     float64 `json:"put_ltp"`
	LotSize    int     `json:"lot_size"`
}

// PremiumPerUnit is the combined premium collected per unit sold.
func (p EntryPlan) PremiumPerUnit() float64 {
	return p.CallLTP + p.PutLTP
}

func (p EntryPlan) NotionalPerLot() float64 {
	return p.Spot * float64(p.LotSize)
}

// EntryPlanner places both strikes one expected daily move away from spot.
type EntryPlanner struct {
	gw         interfaces.OrderGateway
	underlying string
	spotSymbol string
	strikeStep int
}

func NewEntryPlanner(gw interfaces.OrderGateway, underlying, spotSymbol string, strikeStep int) *EntryPlanner {
	return &EntryPlanner{gw: gw, underlying: underlying, spotSymbol: spotSymbol, strikeStep: strikeStep}
}

// Plan rounds the call strike up and the put strike down to the strike
// step. deltaPct is the expected daily move in percent.
func (p *EntryPlanner) Plan(ctx context.Context, deltaPct float64, expiryCode string) (EntryPlan, error) {
	if expiryCode == "" {
		return EntryPlan{}, errors.New("expiry code is not set")
	}
	if deltaPct <= 0 {
		return EntryPlan{}, fmt.Errorf("daily delta must be positive, got %.2f", deltaPct)
	}

	spot, err := p.gw.LTP(ctx, p.spotSymbol)
	if err != nil {
		return EntryPlan{}, fmt.Errorf("spot price: %w", err)
	}
	if spot <= 0 {
		return EntryPlan{}, fmt.Errorf("invalid spot price %.2f", spot)
	}

	plan := EntryPlan{
		Spot:       spot,
		CallStrike: roundUpToStep(spot*(1+deltaPct/100), p.strikeStep),
		PutStrike:  roundDownToStep(spot*(1-deltaPct/100), p.strikeStep),
	}
	plan.CallSymbol = optionSymbol(p.underlying, expiryCode, plan.CallStrike, "CE")
	plan.PutSymbol = optionSymbol(p.underlying, expiryCode, plan.PutStrike, "PE")

	inst, err := p.gw.ResolveInstrument(ctx, plan.CallSymbol)
	if err != nil {
		return EntryPlan{}, fmt.Errorf("resolve %s: %w", plan.CallSymbol, err)
	}
	if _, err := p.gw.ResolveInstrument(ctx, plan.PutSymbol); err != nil {
		return EntryPlan{}, fmt.Errorf("resolve %s: %w", plan.PutSymbol, err)
	}
	plan.LotSize = inst.LotSize

	if plan.CallLTP, err = p.gw.LTP(ctx, plan.CallSymbol); err != nil {
		return EntryPlan{}, fmt.Errorf("call premium: %w", err)
	}
	if plan.PutLTP, err = p.gw.LTP(ctx, plan.PutSymbol); err != nil {
		return EntryPlan{}, fmt.Errorf("put premium: %w", err)
	}
	return plan, nil
}

// optionSymbol builds an exchange trading symbol such as NIFTY24OCT24500CE.
func optionSymbol(underlying, expiryCode string, strike float64, kind string) string {
	return fmt.Sprintf("%s%s%.0f%s", underlying, expiryCode, strike, kind)
}

func (p EntryPlan) legs(exchange, product, orderType string) []types.LegSpec {
	return []types.LegSpec{
		{Name: "CALL", Symbol: p.CallSymbol, Exchange: exchange, Side: types.SideSell, Product: product, OrderType: orderType, LotSize: p.LotSize},
		{Name: "PUT", Symbol: p.PutSymbol, Exchange: exchange, Side: types.SideSell, Product: product, OrderType: orderType, LotSize: p.LotSize},
	}
}
