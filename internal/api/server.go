// Package api is the operator HTTP surface: health, metrics, control flags,
// batch-run progress and cancellation, trading-day configs and on-demand
// averaging evaluations.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"mcube-trader/internal/averaging"
	"mcube-trader/internal/daycfg"
	"mcube-trader/internal/engine"
	"mcube-trader/internal/executor"
	"mcube-trader/internal/flags"
	"mcube-trader/internal/interfaces"
	"mcube-trader/internal/logger"
	"mcube-trader/internal/types"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RecommendationJournal records averaging decisions made through the API.
type RecommendationJournal interface {
	RecordRecommendation(ctx context.Context, r types.AveragingRecommendation)
}

type Deps struct {
	Flags     interfaces.ControlFlagStore
	Progress  interfaces.ProgressStore
	Days      interfaces.DayConfigRepository
	Averaging *averaging.Engine
	// Journal may be nil.
	Journal  RecommendationJournal
	Gatherer prometheus.Gatherer
	Now      func() time.Time
}

type Server struct {
	d   Deps
	srv *http.Server
}

func New(d Deps) *Server {
	if d.Gatherer == nil {
		d.Gatherer = prometheus.DefaultGatherer
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Server{d: d}
}

func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.d.Gatherer, promhttp.HandlerOpts{})))

	r.GET("/flags", s.listFlags)
	r.PUT("/flags/:name", s.putFlag)

	runs := r.Group("/runs/:key")
	runs.GET("/progress", s.runProgress)
	runs.POST("/cancel", s.cancelRun)

	r.GET("/days/:date", s.getDay)
	r.PUT("/days/:date", s.putDay)

	r.POST("/averaging/evaluate", s.evaluateAveraging)
	return r
}

// Start serves in the background until Shutdown.
func (s *Server) Start(addr string) {
	s.srv = &http.Server{Addr: addr, Handler: s.Router(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorWithErr(context.Background(), "Ops server stopped", err, "addr", addr)
		}
	}()
	logger.Info(context.Background(), "Ops server listening", "addr", addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func errorJSON(c *gin.Context, status int, err error) {
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func (s *Server) listFlags(c *gin.Context) {
	all, err := s.d.Flags.All(c.Request.Context())
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, all)
}

type flagBody struct {
	Value       *string `json:"value"`
	Description string  `json:"description"`
}

func (s *Server) putFlag(c *gin.Context) {
	var body flagBody
	if err := c.ShouldBindJSON(&body); err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}
	if body.Value == nil {
		errorJSON(c, http.StatusBadRequest, errors.New("value is required"))
		return
	}
	ctx := c.Request.Context()
	name := c.Param("name")
	if err := s.d.Flags.Set(ctx, name, *body.Value, body.Description); err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}
	logger.Info(ctx, "Flag updated via ops API", "flag", name, "value", *body.Value)
	c.JSON(http.StatusOK, gin.H{"name": name, "value": *body.Value})
}

func (s *Server) runProgress(c *gin.Context) {
	p, ok, err := executor.ReadProgress(c.Request.Context(), s.d.Progress, c.Param("key"))
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, err)
		return
	}
	if !ok {
		errorJSON(c, http.StatusNotFound, errors.New("no progress for run"))
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) cancelRun(c *gin.Context) {
	ctx := c.Request.Context()
	key := c.Param("key")
	if err := executor.RequestCancel(ctx, s.d.Progress, key); err != nil {
		errorJSON(c, http.StatusInternalServerError, err)
		return
	}
	logger.Warn(ctx, "Batch run cancellation requested", "run_key", key)
	c.JSON(http.StatusAccepted, gin.H{"run_key": key, "cancel_requested": true})
}

type dayView struct {
	Config  types.TradingDayConfig `json:"config"`
	State   types.DayState         `json:"state,omitempty"`
	Summary *types.DaySummary      `json:"summary,omitempty"`
}

func (s *Server) getDay(c *gin.Context) {
	ctx := c.Request.Context()
	date := c.Param("date")
	if date == "today" {
		date = s.d.Now().In(types.IST).Format(types.DateLayout)
	}
	cfg, err := s.d.Days.GetOrCreate(ctx, date)
	if err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}
	view := dayView{Config: cfg}
	if st, err := engine.StateAt(cfg, s.d.Now(), s.d.Flags.GetBool(ctx, flags.AutoTradingEnabled, true)); err == nil {
		view.State = st
	}
	if sum, ok, err := s.d.Days.Summary(ctx, date); err == nil && ok {
		view.Summary = &sum
	}
	c.JSON(http.StatusOK, view)
}

// putDay replaces a day's schedule. A started day needs ?override=true.
func (s *Server) putDay(c *gin.Context) {
	var cfg types.TradingDayConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}
	cfg.Date = c.Param("date")
	override := c.Query("override") == "true"

	ctx := c.Request.Context()
	err := s.d.Days.Save(ctx, cfg, override)
	switch {
	case errors.Is(err, daycfg.ErrImmutable):
		errorJSON(c, http.StatusConflict, err)
		return
	case err != nil:
		errorJSON(c, http.StatusBadRequest, err)
		return
	}
	if override {
		logger.Warn(ctx, "Started trading day overridden", "date", cfg.Date)
	}
	saved, err := s.d.Days.GetOrCreate(ctx, cfg.Date)
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, saved)
}
