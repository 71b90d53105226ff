package zerodha

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"mcube-trader/internal/interfaces"
	"mcube-trader/internal/types"
)

var errSessionClosed = errors.New("session closed")

// liveSession places real orders. Kite's REST API is stateless so Close only
// stops further use of the handle.
type liveSession struct {
	g      *Gateway
	closed atomic.Bool
}

var _ interfaces.Session = (*liveSession)(nil)

func (s *liveSession) PlaceOrder(ctx context.Context, req types.OrderReq) (types.OrderResp, error) {
	if s.closed.Load() {
		return types.OrderResp{}, errSessionClosed
	}
	if err := s.g.limiter.Wait(ctx); err != nil {
		return types.OrderResp{}, err
	}
	resp, err := s.g.kc.PlaceOrder(varietyRegular, orderParams(req, s.g.p.Exchange))
	if err != nil {
		return types.OrderResp{}, wrapKiteError(fmt.Sprintf("place %s %s x%d", req.Side, req.Symbol, req.Qty), err)
	}
	return types.OrderResp{OrderID: resp.OrderID, Status: "PLACED"}, nil
}

func (s *liveSession) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	if s.closed.Load() {
		return false, errSessionClosed
	}
	if _, err := s.g.kc.CancelOrder(varietyRegular, orderID, nil); err != nil {
		return false, wrapKiteError("cancel "+orderID, err)
	}
	return true, nil
}

func (s *liveSession) Close() error {
	s.closed.Store(true)
	return nil
}

// paperSession fills every order immediately at the last traded price.
type paperSession struct {
	g      *Gateway
	closed atomic.Bool
}

var _ interfaces.Session = (*paperSession)(nil)

func (s *paperSession) PlaceOrder(ctx context.Context, req types.OrderReq) (types.OrderResp, error) {
	if s.closed.Load() {
		return types.OrderResp{}, errSessionClosed
	}
	if err := s.g.limiter.Wait(ctx); err != nil {
		return types.OrderResp{}, err
	}
	var price float64
	if s.g.kc != nil {
		price, _ = s.g.LTP(ctx, req.Symbol)
	}
	lotSize := 0
	if s.g.kc != nil {
		lotSize = s.g.insts.lotSize(ctx, req.Symbol)
	}
	if req.Exchange == "" {
		req.Exchange = s.g.p.Exchange
	}
	id := s.g.paper.fill(req, price, lotSize)
	return types.OrderResp{OrderID: id, Status: "SIMULATED", Message: "dry run"}, nil
}

func (s *paperSession) CancelOrder(context.Context, string) (bool, error) {
	// paper orders fill on placement
	return false, nil
}

func (s *paperSession) Close() error {
	s.closed.Store(true)
	return nil
}
