package store

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Mode               string `yaml:"mode"`
	Exchange           string `yaml:"exchange"`
	Underlying         string `yaml:"underlying"`
	UnderlyingExchange string `yaml:"underlying_exchange"`
	SpotSymbol         string `yaml:"spot_symbol"`
	StrikeStep         int    `yaml:"strike_step"`
	Paths              struct {
		DataDir string `yaml:"data_dir"`
	} `yaml:"paths"`
	Schedule struct {
		MasterTime         string `yaml:"master_time"`
		EntryIntervalSec   int    `yaml:"entry_interval_sec"`
		MonitorIntervalSec int    `yaml:"monitor_interval_sec"`
		ClosingIntervalSec int    `yaml:"closing_interval_sec"`
		HardCutoffMin      int    `yaml:"hard_cutoff_min"`
	} `yaml:"schedule"`
	Sizing struct {
		MarginFactor    float64   `yaml:"margin_factor"`
		MaxUtilization  float64   `yaml:"max_utilization"`
		AveragingPcts   []float64 `yaml:"averaging_pcts"`
		AveragingCapPct float64   `yaml:"averaging_cap_pct"`
		PremiumStepPct  float64   `yaml:"premium_step_pct"`
	} `yaml:"sizing"`
	Execution struct {
		MaxLotsPerBatch    int     `yaml:"max_lots_per_batch"`
		InterBatchDelaySec int     `yaml:"inter_batch_delay_sec"`
		OrdersPerSecond    int     `yaml:"orders_per_second"`
		Product            string  `yaml:"product"`
		OrderType          string  `yaml:"order_type"`
		PaperMargin        float64 `yaml:"paper_margin"`
	} `yaml:"execution"`
	Setup struct {
		VIXMin     float64 `yaml:"vix_min"`
		VIXMax     float64 `yaml:"vix_max"`
		DefaultVIX float64 `yaml:"default_vix"`
		VIXSymbol  string  `yaml:"vix_symbol"`
	} `yaml:"setup"`
	Risk struct {
		StopLossLimit        float64 `yaml:"stop_loss_limit"`
		MinDailyProfitTarget float64 `yaml:"min_daily_profit_target"`
		AlertMateriality     float64 `yaml:"alert_materiality"`
	} `yaml:"risk"`
	Averaging struct {
		IndexOIFloor     float64 `yaml:"index_oi_floor"`
		StockOIFloor     float64 `yaml:"stock_oi_floor"`
		MaxVolatilityPct float64 `yaml:"max_volatility_pct"`
	} `yaml:"averaging"`
	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`
	Telegram struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"telegram"`
}

func (c *Config) Validate() error {
	if c.Mode != "DRY_RUN" && c.Mode != "LIVE" {
		return fmt.Errorf("invalid mode '%s': must be 'DRY_RUN' or 'LIVE'", c.Mode)
	}
	if c.Underlying == "" {
		return errors.New("underlying cannot be empty")
	}
	if c.Sizing.MarginFactor <= 0 || c.Sizing.MarginFactor > 1 {
		return fmt.Errorf("sizing.margin_factor must be in (0,1], got %.4f", c.Sizing.MarginFactor)
	}
	if c.Sizing.MaxUtilization <= 0 || c.Sizing.MaxUtilization > 1 {
		return fmt.Errorf("sizing.max_utilization must be in (0,1], got %.2f", c.Sizing.MaxUtilization)
	}
	if c.Execution.MaxLotsPerBatch <= 0 {
		return fmt.Errorf("execution.max_lots_per_batch must be positive, got %d", c.Execution.MaxLotsPerBatch)
	}
	if c.Risk.StopLossLimit >= 0 {
		return fmt.Errorf("risk.stop_loss_limit must be negative, got %.2f", c.Risk.StopLossLimit)
	}
	if c.Setup.VIXMin >= c.Setup.VIXMax {
		return fmt.Errorf("setup.vix_min (%.2f) must be below setup.vix_max (%.2f)", c.Setup.VIXMin, c.Setup.VIXMax)
	}
	if _, err := time.Parse("15:04", c.Schedule.MasterTime); err != nil {
		return fmt.Errorf("schedule.master_time: %w", err)
	}
	return nil
}

func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseConfig(b)
}

// ParseConfig decodes YAML, fills defaults and validates.
func ParseConfig(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Mode == "" {
		c.Mode = "DRY_RUN"
	}
	if c.Exchange == "" {
		c.Exchange = "NFO"
	}
	if c.Underlying == "" {
		c.Underlying = "NIFTY"
	}
	if c.UnderlyingExchange == "" {
		c.UnderlyingExchange = "NSE"
	}
	if c.SpotSymbol == "" {
		c.SpotSymbol = "NSE:NIFTY 50"
	}
	if c.StrikeStep == 0 {
		c.StrikeStep = 50
	}
	if c.Paths.DataDir == "" {
		c.Paths.DataDir = "data"
	}

	s := &c.Schedule
	if s.MasterTime == "" {
		s.MasterTime = "08:45"
	}
	if s.EntryIntervalSec == 0 {
		s.EntryIntervalSec = 60
	}
	if s.MonitorIntervalSec == 0 {
		s.MonitorIntervalSec = 30
	}
	if s.ClosingIntervalSec == 0 {
		s.ClosingIntervalSec = 60
	}
	if s.HardCutoffMin == 0 {
		s.HardCutoffMin = 10
	}

	z := &c.Sizing
	if z.MarginFactor == 0 {
		z.MarginFactor = 0.13
	}
	if z.MaxUtilization == 0 {
		z.MaxUtilization = 0.5
	}
	if len(z.AveragingPcts) == 0 {
		z.AveragingPcts = []float64{20, 50, 50}
	}
	if z.AveragingCapPct == 0 {
		z.AveragingCapPct = 50
	}
	if z.PremiumStepPct == 0 {
		z.PremiumStepPct = 10
	}

	e := &c.Execution
	if e.MaxLotsPerBatch == 0 {
		e.MaxLotsPerBatch = 20
	}
	if e.InterBatchDelaySec == 0 {
		e.InterBatchDelaySec = 20
	}
	if e.OrdersPerSecond == 0 {
		e.OrdersPerSecond = 10
	}
	if e.Product == "" {
		e.Product = "NRML"
	}
	if e.OrderType == "" {
		e.OrderType = "MARKET"
	}
	if e.PaperMargin == 0 {
		e.PaperMargin = 1000000
	}

	if c.Setup.VIXMax == 0 {
		c.Setup.VIXMin, c.Setup.VIXMax = 10, 25
	}
	if c.Setup.DefaultVIX == 0 {
		c.Setup.DefaultVIX = 14
	}
	if c.Setup.VIXSymbol == "" {
		c.Setup.VIXSymbol = "NSE:INDIA VIX"
	}

	if c.Risk.StopLossLimit == 0 {
		c.Risk.StopLossLimit = -25000
	}
	if c.Risk.MinDailyProfitTarget == 0 {
		c.Risk.MinDailyProfitTarget = 10000
	}
	if c.Risk.AlertMateriality == 0 {
		c.Risk.AlertMateriality = 5000
	}

	if c.Averaging.IndexOIFloor == 0 {
		c.Averaging.IndexOIFloor = 100000
	}
	if c.Averaging.StockOIFloor == 0 {
		c.Averaging.StockOIFloor = 25000
	}
	if c.Averaging.MaxVolatilityPct == 0 {
		c.Averaging.MaxVolatilityPct = 3.0
	}

	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8090"
	}
}

func (c *Config) InterBatchDelay() time.Duration {
	return time.Duration(c.Execution.InterBatchDelaySec) * time.Second
}
