package zerodha

import (
	"context"
	"fmt"
	"sync"
	"time"

	"mcube-trader/internal/broker"
	"mcube-trader/internal/logger"
	"mcube-trader/internal/types"
)

// instrumentMapper caches one exchange's instrument dump. It is reloaded
// once per IST calendar day since weekly contracts are listed daily.
type instrumentMapper struct {
	mu        sync.RWMutex
	bySymbol  map[string]types.Instrument
	loadedFor string
	now       func() time.Time
	load      func() ([]types.Instrument, error)
}

func newInstrumentMapper(load func() ([]types.Instrument, error)) *instrumentMapper {
	return &instrumentMapper{
		bySymbol: map[string]types.Instrument{},
		now:      time.Now,
		load:     load,
	}
}

func (im *instrumentMapper) resolve(ctx context.Context, symbol string) (types.Instrument, error) {
	if err := im.ensureLoaded(ctx); err != nil {
		return types.Instrument{}, err
	}
	im.mu.RLock()
	defer im.mu.RUnlock()
	inst, ok := im.bySymbol[symbol]
	if !ok {
		return types.Instrument{}, fmt.Errorf("%s: %w", symbol, broker.ErrUnknownInstrument)
	}
	return inst, nil
}

// lotSize returns 0 when the symbol is unknown.
func (im *instrumentMapper) lotSize(ctx context.Context, symbol string) int {
	inst, err := im.resolve(ctx, symbol)
	if err != nil {
		return 0
	}
	return inst.LotSize
}

func (im *instrumentMapper) ensureLoaded(ctx context.Context) error {
	today := im.now().In(types.IST).Format(types.DateLayout)

	im.mu.RLock()
	fresh := im.loadedFor == today
	im.mu.RUnlock()
	if fresh {
		return nil
	}

	insts, err := im.load()
	if err != nil {
		return fmt.Errorf("load instruments: %w", err)
	}

	im.mu.Lock()
	defer im.mu.Unlock()
	im.bySymbol = make(map[string]types.Instrument, len(insts))
	for _, inst := range insts {
		im.bySymbol[inst.Symbol] = inst
	}
	im.loadedFor = today
	logger.Info(ctx, "Instrument cache loaded", "count", len(insts), "date", today)
	return nil
}
