package zerodha

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"mcube-trader/internal/types"
)

// paperBook is the DRY_RUN position ledger.
type paperBook struct {
	mu        sync.Mutex
	capital   float64
	seq       int
	realized  float64
	positions map[string]*types.PositionSnapshot
}

func newPaperBook(capital float64) *paperBook {
	return &paperBook{capital: capital, positions: map[string]*types.PositionSnapshot{}}
}

// fill books req at price and returns a simulated order id.
func (b *paperBook) fill(req types.OrderReq, price float64, lotSize int) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	qty := req.Qty
	if req.Side == types.SideSell {
		qty = -qty
	}

	p, ok := b.positions[req.Symbol]
	if !ok {
		if lotSize <= 0 {
			lotSize = 1
		}
		p = &types.PositionSnapshot{
			Symbol:   req.Symbol,
			Exchange: req.Exchange,
			Product:  req.Product,
			LotSize:  lotSize,
		}
		b.positions[req.Symbol] = p
	}
	p.LastPrice = price

	switch {
	case p.Quantity == 0 || sameSign(p.Quantity, qty):
		total := abs(p.Quantity) + abs(qty)
		p.AveragePrice = (p.AveragePrice*float64(abs(p.Quantity)) + price*float64(abs(qty))) / float64(total)
		p.Quantity += qty
	default:
		closing := min(abs(qty), abs(p.Quantity))
		if p.Quantity > 0 {
			b.realized += (price - p.AveragePrice) * float64(closing)
		} else {
			b.realized += (p.AveragePrice - price) * float64(closing)
		}
		p.Quantity += qty
		if p.Quantity != 0 && !sameSign(p.Quantity, -qty) {
			// flipped through zero; the remainder opens at price
			p.AveragePrice = price
		}
	}
	if p.Quantity == 0 {
		delete(b.positions, req.Symbol)
	}
	return fmt.Sprintf("SIM-%d", b.seq)
}

func (b *paperBook) symbols() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.positions))
	for s := range b.positions {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// snapshot marks open positions at marks and returns copies sorted by symbol.
func (b *paperBook) snapshot(marks map[string]float64) []types.PositionSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.markLocked(marks)
	out := make([]types.PositionSnapshot, 0, len(b.positions))
	for _, p := range b.positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// pnl is realized plus unrealized P&L at marks.
func (b *paperBook) pnl(marks map[string]float64) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.markLocked(marks)
	total := b.realized
	for _, p := range b.positions {
		total += p.PnL
	}
	return total
}

func (b *paperBook) markLocked(marks map[string]float64) {
	for sym, p := range b.positions {
		if px, ok := marks[sym]; ok {
			p.LastPrice = px
		}
		p.PnL = (p.LastPrice - p.AveragePrice) * float64(p.Quantity)
	}
}

// margin reports the configured paper capital less premium at risk on
// short legs.
func (b *paperBook) margin(now time.Time) types.MarginSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	used := 0.0
	for _, p := range b.positions {
		if p.Quantity < 0 {
			used += p.AveragePrice * float64(-p.Quantity)
		}
	}
	return types.MarginSnapshot{
		Available: b.capital - used,
		Used:      used,
		Total:     b.capital,
		FetchedAt: now,
	}
}

func sameSign(a, b int) bool {
	return (a > 0) == (b > 0)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
