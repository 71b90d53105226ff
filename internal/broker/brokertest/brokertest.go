// Package brokertest provides an in-memory OrderGateway for tests. Accepted
// orders update the simulated positions so open and close flows can be
// exercised end to end.
package brokertest

import (
	"context"
	"fmt"
	"sync"

	"mcube-trader/internal/broker"
	"mcube-trader/internal/interfaces"
	"mcube-trader/internal/types"
)

type Gateway struct {
	mu sync.Mutex

	LoginErr     error
	Margin       types.MarginSnapshot
	MarginErr    error
	PnL          float64
	PnLErr       error
	PositionsErr error
	Prices       map[string]float64
	Instruments  map[string]types.Instrument

	positions map[string]*types.PositionSnapshot
	logins    int
	sess      *Session
}

var _ interfaces.OrderGateway = (*Gateway)(nil)

func NewGateway() *Gateway {
	g := &Gateway{
		Prices:      map[string]float64{},
		Instruments: map[string]types.Instrument{},
		positions:   map[string]*types.PositionSnapshot{},
	}
	g.sess = &Session{g: g, calls: map[string]int{}}
	return g
}

// Session returns the single session handed out by Login.
func (g *Gateway) Session() *Session {
	return g.sess
}

func (g *Gateway) Logins() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.logins
}

func (g *Gateway) SetPnL(v float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.PnL = v
}

func (g *Gateway) SetPosition(p types.PositionSnapshot) {
	g.mu.Lock()
	defer g.mu.Unlock()
	cp := p
	g.positions[p.Symbol] = &cp
}

func (g *Gateway) Login(context.Context) (interfaces.Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.LoginErr != nil {
		return nil, g.LoginErr
	}
	g.logins++
	return g.sess, nil
}

func (g *Gateway) FetchMargin(context.Context) (types.MarginSnapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.Margin, g.MarginErr
}

func (g *Gateway) FetchPositions(context.Context) ([]types.PositionSnapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.PositionsErr != nil {
		return nil, g.PositionsErr
	}
	out := make([]types.PositionSnapshot, 0, len(g.positions))
	for _, p := range g.positions {
		out = append(out, *p)
	}
	return out, nil
}

func (g *Gateway) ResolveInstrument(_ context.Context, symbol string) (types.Instrument, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	inst, ok := g.Instruments[symbol]
	if !ok {
		return types.Instrument{}, fmt.Errorf("%s: %w", symbol, broker.ErrUnknownInstrument)
	}
	return inst, nil
}

func (g *Gateway) FetchPnL(context.Context) (float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.PnL, g.PnLErr
}

func (g *Gateway) LTP(_ context.Context, symbol string) (float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.Prices[symbol]
	if !ok {
		return 0, fmt.Errorf("no price for %s", symbol)
	}
	return p, nil
}

func (g *Gateway) fill(req types.OrderReq) {
	g.mu.Lock()
	defer g.mu.Unlock()

	p, ok := g.positions[req.Symbol]
	if !ok {
		lotSize := 1
		if inst, found := g.Instruments[req.Symbol]; found {
			lotSize = inst.LotSize
		}
		p = &types.PositionSnapshot{
			Symbol:   req.Symbol,
			Exchange: req.Exchange,
			Product:  req.Product,
			LotSize:  lotSize,
		}
		g.positions[req.Symbol] = p
	}
	if req.Side == types.SideBuy {
		p.Quantity += req.Qty
	} else {
		p.Quantity -= req.Qty
	}
	if p.Quantity == 0 {
		delete(g.positions, req.Symbol)
	}
}

// Session records orders. OnPlace, when set, decides each order's outcome;
// batch is the 1-based count of orders seen for that symbol.
type Session struct {
	g *Gateway

	mu      sync.Mutex
	calls   map[string]int
	orders  []types.OrderReq
	closed  int
	OnPlace func(req types.OrderReq, batch int) error
}

func (s *Session) PlaceOrder(_ context.Context, req types.OrderReq) (types.OrderResp, error) {
	s.mu.Lock()
	s.calls[req.Symbol]++
	batch := s.calls[req.Symbol]
	s.orders = append(s.orders, req)
	hook := s.OnPlace
	s.mu.Unlock()

	if hook != nil {
		if err := hook(req, batch); err != nil {
			return types.OrderResp{}, err
		}
	}
	s.g.fill(req)
	return types.OrderResp{OrderID: fmt.Sprintf("%s-%d", req.Symbol, batch), Status: "COMPLETE"}, nil
}

func (s *Session) CancelOrder(context.Context, string) (bool, error) {
	return true, nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *Session) Calls(symbol string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[symbol]
}

func (s *Session) Orders() []types.OrderReq {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.OrderReq(nil), s.orders...)
}

func (s *Session) Closed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Notifier records messages in memory.
type Notifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *Notifier) Send(_ context.Context, msg string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, msg)
	return true
}

func (n *Notifier) Messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.messages...)
}
