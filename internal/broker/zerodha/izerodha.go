package zerodha

import (
	kiteconnect "github.com/zerodha/gokiteconnect/v4"
)

// kiteClient is the subset of the Kite Connect client the gateway uses.
type kiteClient interface {
	GetUserProfile() (kiteconnect.UserProfile, error)
	GetUserMargins() (kiteconnect.AllMargins, error)
	GetPositions() (kiteconnect.Positions, error)
	GetInstrumentsByExchange(exchange string) (kiteconnect.Instruments, error)
	GetLTP(instruments ...string) (kiteconnect.QuoteLTP, error)
	PlaceOrder(variety string, params kiteconnect.OrderParams) (kiteconnect.OrderResponse, error)
	CancelOrder(variety string, orderID string, parentOrderID *string) (kiteconnect.OrderResponse, error)
}

var _ kiteClient = (*kiteconnect.Client)(nil)
