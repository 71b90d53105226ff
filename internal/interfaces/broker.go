package interfaces

import (
	"context"

	"mcube-trader/internal/types"
)

// OrderGateway is the brokerage boundary used by sizing, execution and risk.
type OrderGateway interface {
	// Login opens an authenticated session. Callers must Close it.
	Login(ctx context.Context) (Session, error)

	FetchMargin(ctx context.Context) (types.MarginSnapshot, error)

	FetchPositions(ctx context.Context) ([]types.PositionSnapshot, error)

	// ResolveInstrument returns lot size and token for a tradable symbol.
	ResolveInstrument(ctx context.Context, symbol string) (types.Instrument, error)

	// FetchPnL returns the live P&L summed over open positions.
	FetchPnL(ctx context.Context) (float64, error)

	LTP(ctx context.Context, symbol string) (float64, error)
}

// Session places and cancels orders for one batch run.
type Session interface {
	PlaceOrder(ctx context.Context, req types.OrderReq) (types.OrderResp, error)
	CancelOrder(ctx context.Context, orderID string) (bool, error)
	Close() error
}
