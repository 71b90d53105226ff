package zerodha

import (
	"context"
	"fmt"
	"strings"
	"time"

	"mcube-trader/internal/broker"
	"mcube-trader/internal/interfaces"
	"mcube-trader/internal/types"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"
	"golang.org/x/time/rate"
)

const (
	ModeLive   = "LIVE"
	ModeDryRun = "DRY_RUN"

	varietyRegular = "regular"
	validityDay    = "DAY"
	maxTagLen      = 20
)

type Params struct {
	Mode            string
	APIKey          string
	AccessToken     string
	Exchange        string
	OrdersPerSecond int
	// PaperMargin is the margin reported in DRY_RUN mode.
	PaperMargin float64
}

// Gateway talks to Kite Connect. In DRY_RUN mode market data still comes
// from Kite when credentials are present, while orders, margin and
// positions are simulated in a paper book.
type Gateway struct {
	p       Params
	kc      kiteClient
	insts   *instrumentMapper
	limiter *rate.Limiter
	paper   *paperBook
	now     func() time.Time
}

var _ interfaces.OrderGateway = (*Gateway)(nil)

func newGateway(p Params, kc kiteClient) *Gateway {
	if p.Exchange == "" {
		p.Exchange = "NFO"
	}
	if p.OrdersPerSecond <= 0 {
		p.OrdersPerSecond = 10
	}
	g := &Gateway{
		p:       p,
		kc:      kc,
		limiter: rate.NewLimiter(rate.Limit(p.OrdersPerSecond), p.OrdersPerSecond),
		now:     time.Now,
	}
	g.insts = newInstrumentMapper(g.loadInstruments)
	if p.Mode != ModeLive {
		g.paper = newPaperBook(p.PaperMargin)
	}
	return g
}

func (g *Gateway) live() bool {
	return g.paper == nil
}

func (g *Gateway) client() (kiteClient, error) {
	if g.kc == nil {
		return nil, fmt.Errorf("kite client not configured: %w", broker.ErrAuth)
	}
	return g.kc, nil
}

// Login verifies the access token. A DRY_RUN session needs no credentials.
func (g *Gateway) Login(ctx context.Context) (interfaces.Session, error) {
	if !g.live() {
		return &paperSession{g: g}, nil
	}
	kc, err := g.client()
	if err != nil {
		return nil, err
	}
	if g.p.AccessToken == "" {
		return nil, fmt.Errorf("missing access token: %w", broker.ErrAuth)
	}
	if _, err := kc.GetUserProfile(); err != nil {
		return nil, wrapKiteError("login", err)
	}
	return &liveSession{g: g}, nil
}

func (g *Gateway) FetchMargin(ctx context.Context) (types.MarginSnapshot, error) {
	if !g.live() {
		return g.paper.margin(g.now()), nil
	}
	kc, err := g.client()
	if err != nil {
		return types.MarginSnapshot{}, err
	}
	m, err := kc.GetUserMargins()
	if err != nil {
		return types.MarginSnapshot{}, wrapKiteError("fetch margins", err)
	}
	eq := m.Equity
	return types.MarginSnapshot{
		Available:  eq.Net,
		Used:       eq.Used.Debits,
		Total:      eq.Available.Cash + eq.Available.Collateral,
		Collateral: eq.Available.Collateral,
		FetchedAt:  g.now(),
	}, nil
}

func (g *Gateway) FetchPositions(ctx context.Context) ([]types.PositionSnapshot, error) {
	if !g.live() {
		return g.paper.snapshot(g.markPrices(ctx)), nil
	}
	kc, err := g.client()
	if err != nil {
		return nil, err
	}
	pos, err := kc.GetPositions()
	if err != nil {
		return nil, wrapKiteError("fetch positions", err)
	}
	out := make([]types.PositionSnapshot, 0, len(pos.Net))
	for _, p := range pos.Net {
		ps := types.PositionSnapshot{
			Symbol:       p.Tradingsymbol,
			Exchange:     p.Exchange,
			Product:      p.Product,
			Quantity:     p.Quantity,
			AveragePrice: p.AveragePrice,
			LastPrice:    p.LastPrice,
			PnL:          p.PnL,
			LotSize:      1,
		}
		if p.Exchange == g.p.Exchange {
			if ls := g.insts.lotSize(ctx, p.Tradingsymbol); ls > 0 {
				ps.LotSize = ls
			}
		}
		out = append(out, ps)
	}
	return out, nil
}

func (g *Gateway) FetchPnL(ctx context.Context) (float64, error) {
	if !g.live() {
		return g.paper.pnl(g.markPrices(ctx)), nil
	}
	positions, err := g.FetchPositions(ctx)
	if err != nil {
		return 0, err
	}
	total := 0.0
	for _, p := range positions {
		total += p.PnL
	}
	return total, nil
}

func (g *Gateway) ResolveInstrument(ctx context.Context, symbol string) (types.Instrument, error) {
	return g.insts.resolve(ctx, symbol)
}

// LTP accepts "EXCHANGE:SYMBOL" or a bare symbol on the default exchange.
func (g *Gateway) LTP(ctx context.Context, symbol string) (float64, error) {
	kc, err := g.client()
	if err != nil {
		return 0, err
	}
	key := symbol
	if !strings.Contains(symbol, ":") {
		key = g.p.Exchange + ":" + symbol
	}
	q, err := kc.GetLTP(key)
	if err != nil {
		return 0, wrapKiteError("ltp "+key, err)
	}
	v, ok := q[key]
	if !ok {
		return 0, fmt.Errorf("no quote for %s: %w", key, broker.ErrUnknownInstrument)
	}
	return v.LastPrice, nil
}

// markPrices fetches LTPs for paper positions; symbols without a quote keep
// their last mark.
func (g *Gateway) markPrices(ctx context.Context) map[string]float64 {
	marks := map[string]float64{}
	if g.kc == nil {
		return marks
	}
	for _, sym := range g.paper.symbols() {
		if px, err := g.LTP(ctx, sym); err == nil {
			marks[sym] = px
		}
	}
	return marks
}

func (g *Gateway) loadInstruments() ([]types.Instrument, error) {
	kc, err := g.client()
	if err != nil {
		return nil, err
	}
	raw, err := kc.GetInstrumentsByExchange(g.p.Exchange)
	if err != nil {
		return nil, wrapKiteError("instruments "+g.p.Exchange, err)
	}
	out := make([]types.Instrument, 0, len(raw))
	for _, i := range raw {
		inst := types.Instrument{
			Symbol:      i.Tradingsymbol,
			Exchange:    i.Exchange,
			Token:       int(i.InstrumentToken),
			LotSize:     int(i.LotSize),
			StrikePrice: float64(i.StrikePrice),
		}
		if !i.Expiry.IsZero() {
			inst.Expiry = i.Expiry.Format(types.DateLayout)
		}
		out = append(out, inst)
	}
	return out, nil
}

func orderParams(req types.OrderReq, exchange string) kiteconnect.OrderParams {
	if req.Exchange != "" {
		exchange = req.Exchange
	}
	tag := req.Tag
	if len(tag) > maxTagLen {
		tag = tag[:maxTagLen]
	}
	return kiteconnect.OrderParams{
		Exchange:        exchange,
		Tradingsymbol:   req.Symbol,
		Validity:        validityDay,
		Product:         req.Product,
		OrderType:       req.OrderType,
		TransactionType: req.Side,
		Quantity:        req.Qty,
		Tag:             tag,
	}
}
