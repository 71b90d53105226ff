package brokerobs

import (
	"context"

	"mcube-trader/internal/interfaces"
	"mcube-trader/internal/logger"
	"mcube-trader/internal/trace"
	"mcube-trader/internal/types"
)

// observableGateway wraps an OrderGateway with logging and tracing
type observableGateway struct {
	gw interfaces.OrderGateway
}

var _ interfaces.OrderGateway = (*observableGateway)(nil)

// Wrap wraps a gateway with observability middleware
func Wrap(gw interfaces.OrderGateway) interfaces.OrderGateway {
	return &observableGateway{gw: gw}
}

func (o *observableGateway) Login(ctx context.Context) (interfaces.Session, error) {
	ctx, span := trace.StartSpan(ctx, "broker.Login")
	defer span.End()

	sess, err := o.gw.Login(ctx)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Broker login failed", err)
		return nil, err
	}
	logger.DebugSkip(ctx, 1, "Broker session opened")
	return &observableSession{sess: sess}, nil
}

func (o *observableGateway) FetchMargin(ctx context.Context) (types.MarginSnapshot, error) {
	ctx, span := trace.StartSpan(ctx, "broker.FetchMargin")
	defer span.End()

	m, err := o.gw.FetchMargin(ctx)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch margin", err)
		return m, err
	}
	logger.DebugSkip(ctx, 1, "Margin fetched", "available", m.Available, "used", m.Used)
	return m, nil
}

func (o *observableGateway) FetchPositions(ctx context.Context) ([]types.PositionSnapshot, error) {
	ctx, span := trace.StartSpan(ctx, "broker.FetchPositions")
	defer span.End()

	pos, err := o.gw.FetchPositions(ctx)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch positions", err)
		return nil, err
	}
	logger.DebugSkip(ctx, 1, "Positions fetched", "count", len(pos))
	return pos, nil
}

func (o *observableGateway) ResolveInstrument(ctx context.Context, symbol string) (types.Instrument, error) {
	ctx, span := trace.StartSpan(ctx, "broker.ResolveInstrument")
	defer span.End()

	inst, err := o.gw.ResolveInstrument(ctx, symbol)
	if err != nil {
		logger.WarnSkip(ctx, 1, "Instrument not resolved", "symbol", symbol, "error", err)
		return inst, err
	}
	return inst, nil
}

func (o *observableGateway) FetchPnL(ctx context.Context) (float64, error) {
	ctx, span := trace.StartSpan(ctx, "broker.FetchPnL")
	defer span.End()

	pnl, err := o.gw.FetchPnL(ctx)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch P&L", err)
		return 0, err
	}
	logger.DebugSkip(ctx, 1, "P&L fetched", "pnl", pnl)
	return pnl, nil
}

func (o *observableGateway) LTP(ctx context.Context, symbol string) (float64, error) {
	ctx, span := trace.StartSpan(ctx, "broker.LTP")
	defer span.End()

	price, err := o.gw.LTP(ctx, symbol)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch LTP", err, "symbol", symbol)
		return 0, err
	}
	logger.DebugSkip(ctx, 1, "LTP fetched", "symbol", symbol, "price", price)
	return price, nil
}

type observableSession struct {
	sess interfaces.Session
}

func (o *observableSession) PlaceOrder(ctx context.Context, req types.OrderReq) (types.OrderResp, error) {
	ctx, span := trace.StartSpan(ctx, "broker.PlaceOrder")
	defer span.End()

	resp, err := o.sess.PlaceOrder(ctx, req)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to place order", err,
			"symbol", req.Symbol,
			"side", req.Side,
			"qty", req.Qty,
		)
		return resp, err
	}
	logger.Trade(ctx, req.Symbol, req.Side, req.Qty, resp.OrderID, "tag", req.Tag, "status", resp.Status)
	return resp, nil
}

func (o *observableSession) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	ctx, span := trace.StartSpan(ctx, "broker.CancelOrder")
	defer span.End()

	ok, err := o.sess.CancelOrder(ctx, orderID)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to cancel order", err, "order_id", orderID)
		return false, err
	}
	logger.InfoSkip(ctx, 1, "Cancel requested", "order_id", orderID, "accepted", ok)
	return ok, nil
}

func (o *observableSession) Close() error {
	return o.sess.Close()
}
