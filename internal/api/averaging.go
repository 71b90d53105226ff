package api

import (
	"errors"
	"net/http"

	"mcube-trader/internal/averaging"
	"mcube-trader/internal/types"

	"github.com/gin-gonic/gin"
)

type averagingRequest struct {
	Symbol        string          `json:"symbol" binding:"required"`
	Direction     types.Direction `json:"direction" binding:"required"`
	EntryPrice    float64         `json:"entry_price" binding:"required"`
	Lots          int             `json:"lots"`
	CurrentPrice  float64         `json:"current_price" binding:"required"`
	Supports      []float64       `json:"supports"`
	Resistances   []float64       `json:"resistances"`
	OpenInterest  float64         `json:"open_interest"`
	IsIndex       bool            `json:"is_index"`
	DMA20         float64         `json:"dma20"`
	DMA50         float64         `json:"dma50"`
	Closes        []float64       `json:"closes"`
	Highs         []float64       `json:"highs"`
	Lows          []float64       `json:"lows"`
	Volume        float64         `json:"volume"`
	AvgVolume     float64         `json:"avg_volume"`
	SectorScore   *float64        `json:"sector_score"`
	VolatilityPct float64         `json:"volatility_pct"`
}

func (r averagingRequest) split() (averaging.Position, averaging.Market) {
	m := averaging.Market{
		CurrentPrice:  r.CurrentPrice,
		Supports:      r.Supports,
		Resistances:   r.Resistances,
		OpenInterest:  r.OpenInterest,
		IsIndex:       r.IsIndex,
		DMA20:         r.DMA20,
		DMA50:         r.DMA50,
		Closes:        r.Closes,
		Highs:         r.Highs,
		Lows:          r.Lows,
		Volume:        r.Volume,
		AvgVolume:     r.AvgVolume,
		VolatilityPct: r.VolatilityPct,
	}
	if r.SectorScore != nil {
		m.SectorScore, m.HasSector = *r.SectorScore, true
	}
	return averaging.Position{
		Symbol:     r.Symbol,
		Direction:  r.Direction,
		EntryPrice: r.EntryPrice,
		Lots:       r.Lots,
	}, m
}

func (s *Server) evaluateAveraging(c *gin.Context) {
	if s.d.Averaging == nil {
		errorJSON(c, http.StatusServiceUnavailable, errors.New("averaging engine not configured"))
		return
	}
	var req averagingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}
	if req.Direction != types.Long && req.Direction != types.Short {
		errorJSON(c, http.StatusBadRequest, errors.New("direction must be LONG or SHORT"))
		return
	}

	ctx := c.Request.Context()
	pos, mkt := req.split()
	rec := s.d.Averaging.Evaluate(ctx, pos, mkt)
	if s.d.Journal != nil {
		s.d.Journal.RecordRecommendation(ctx, rec)
	}
	c.JSON(http.StatusOK, rec)
}
