package zerodha

import (
	kiteconnect "github.com/zerodha/gokiteconnect/v4"
)

// NewGateway builds a Kite gateway. Without an API key only DRY_RUN order
// flow works; market data calls fail.
func NewGateway(p Params) *Gateway {
	var kc kiteClient
	if p.APIKey != "" {
		c := kiteconnect.New(p.APIKey)
		c.SetAccessToken(p.AccessToken)
		kc = c
	}
	return newGateway(p, kc)
}
