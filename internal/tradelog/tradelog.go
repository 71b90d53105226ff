// Package tradelog is the append-only order journal. Every leg placement and
// averaging decision is written as one JSON line to a size-rotated file.
package tradelog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"mcube-trader/internal/types"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const fileName = "orders.jsonl"

type Options struct {
	// Dir defaults to $TRADER_LOG_DIR, then "logs".
	Dir        string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

type Journal struct {
	log  *zap.Logger
	file *lumberjack.Logger
}

func logDir() string {
	if v := os.Getenv("TRADER_LOG_DIR"); v != "" {
		return v
	}
	return "logs"
}

func Open(opts Options) (*Journal, error) {
	if opts.Dir == "" {
		opts.Dir = logDir()
	}
	if opts.MaxSizeMB == 0 {
		opts.MaxSizeMB = 50
	}
	if opts.MaxAgeDays == 0 {
		opts.MaxAgeDays = 90
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}

	file := &lumberjack.Logger{
		Filename:   filepath.Join(opts.Dir, fileName),
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   opts.Compress,
	}
	enc := zapcore.EncoderConfig{
		TimeKey:     "time",
		MessageKey:  "event",
		LineEnding:  zapcore.DefaultLineEnding,
		EncodeTime:  istTime,
		EncodeLevel: zapcore.LowercaseLevelEncoder,
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(enc), zapcore.AddSync(file), zapcore.InfoLevel)
	return &Journal{log: zap.New(core), file: file}, nil
}

func istTime(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.In(types.IST).Format("2006-01-02 15:04:05.000"))
}

// Path is the active journal file.
func (j *Journal) Path() string {
	return j.file.Filename
}

func (j *Journal) RecordOrder(_ context.Context, runKey string, mode types.RunMode, batch int, leg types.LegResult) {
	fields := []zap.Field{
		zap.String("run_key", runKey),
		zap.String("mode", string(mode)),
		zap.Int("batch", batch),
		zap.String("leg", leg.Leg),
		zap.String("symbol", leg.Symbol),
		zap.String("side", leg.Side),
		zap.Int("qty", leg.Quantity),
		zap.Bool("success", leg.Success),
	}
	if leg.OrderID != "" {
		fields = append(fields, zap.String("order_id", leg.OrderID))
	}
	if !leg.Success {
		fields = append(fields,
			zap.String("error", leg.Error),
			zap.String("error_kind", string(leg.ErrorKind)))
	}
	j.log.Info("order", fields...)
}

func (j *Journal) RecordRecommendation(_ context.Context, r types.AveragingRecommendation) {
	j.log.Info("averaging",
		zap.String("symbol", r.Symbol),
		zap.String("direction", string(r.Direction)),
		zap.Float64("entry_price", r.EntryPrice),
		zap.Float64("current_price", r.CurrentPrice),
		zap.Int("confidence", r.Confidence),
		zap.String("recommendation", string(r.Recommendation)),
		zap.Int("suggested_lots", r.SuggestedAdditionalLots),
		zap.String("reason", r.Reason),
	)
}

func (j *Journal) Close() error {
	_ = j.log.Sync()
	return j.file.Close()
}
