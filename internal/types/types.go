package types

import "time"

const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

type OrderReq struct {
	Symbol    string `json:"symbol"`
	Exchange  string `json:"exchange"`
	Side      string `json:"side"`
	Qty       int    `json:"qty"`
	Product   string `json:"product"`
	OrderType string `json:"order_type"`
	Tag       string `json:"tag,omitempty"`
}

type OrderResp struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// MarginSnapshot is fetched fresh before every sizing decision.
type MarginSnapshot struct {
	Available  float64   `json:"available"`
	Used       float64   `json:"used"`
	Total      float64   `json:"total"`
	Collateral float64   `json:"collateral"`
	FetchedAt  time.Time `json:"fetched_at"`
}

// PositionSnapshot is one net position as reported by the broker.
// Quantity is signed: negative for short.
type PositionSnapshot struct {
	Symbol       string  `json:"symbol"`
	Exchange     string  `json:"exchange"`
	Product      string  `json:"product"`
	Quantity     int     `json:"quantity"`
	AveragePrice float64 `json:"average_price"`
	LastPrice    float64 `json:"last_price"`
	PnL          float64 `json:"pnl"`
	LotSize      int     `json:"lot_size"`
}

type Instrument struct {
	Symbol      string  `json:"symbol"`
	Exchange    string  `json:"exchange"`
	Token       int     `json:"token"`
	LotSize     int     `json:"lot_size"`
	StrikePrice float64 `json:"strike_price,omitempty"`
	Expiry      string  `json:"expiry,omitempty"`
}
