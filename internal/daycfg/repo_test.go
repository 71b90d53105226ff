package daycfg

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"mcube-trader/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openRepo(t *testing.T) *Repository {
	t.Helper()
	r, err := Open(filepath.Join(t.TempDir(), "trader.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestGetOrCreate_InsertsDefaultsOnce(t *testing.T) {
	r := openRepo(t)
	ctx := context.Background()

	c, err := r.GetOrCreate(ctx, "2024-10-01")
	require.NoError(t, err)
	assert.Equal(t, "09:15", c.Open)
	assert.Equal(t, "15:45", c.CloseDay)
	assert.True(t, c.Enabled)
	assert.False(t, c.Started())

	c.Note = "edited"
	require.NoError(t, r.Save(ctx, c, false))

	again, err := r.GetOrCreate(ctx, "2024-10-01")
	require.NoError(t, err)
	assert.Equal(t, "edited", again.Note)
}

func TestGetOrCreate_RejectsBadDate(t *testing.T) {
	r := openRepo(t)
	_, err := r.GetOrCreate(context.Background(), "01/10/2024")
	assert.Error(t, err)
}

func TestSave_ImmutableOnceStarted(t *testing.T) {
	r := openRepo(t)
	ctx := context.Background()
	started := time.Date(2024, 10, 1, 8, 45, 0, 0, types.IST)

	require.NoError(t, r.MarkStarted(ctx, "2024-10-01", started))

	c, err := r.GetOrCreate(ctx, "2024-10-01")
	require.NoError(t, err)
	require.True(t, c.Started())
	assert.True(t, c.StartedAt.Equal(started))

	c.TakeTrade = "09:45"
	assert.ErrorIs(t, r.Save(ctx, c, false), ErrImmutable)

	require.NoError(t, r.Save(ctx, c, true))
	got, err := r.GetOrCreate(ctx, "2024-10-01")
	require.NoError(t, err)
	assert.Equal(t, "09:45", got.TakeTrade)
	// override keeps the original start time
	assert.True(t, got.StartedAt.Equal(started))
}

func TestMarkStarted_KeepsFirstTime(t *testing.T) {
	r := openRepo(t)
	ctx := context.Background()
	first := time.Date(2024, 10, 1, 8, 45, 0, 0, types.IST)

	require.NoError(t, r.MarkStarted(ctx, "2024-10-01", first))
	require.NoError(t, r.MarkStarted(ctx, "2024-10-01", first.Add(time.Hour)))

	c, err := r.GetOrCreate(ctx, "2024-10-01")
	require.NoError(t, err)
	assert.True(t, c.StartedAt.Equal(first))
}

func TestSave_ValidatesOrdering(t *testing.T) {
	r := openRepo(t)
	c := types.DefaultDayConfig("2024-10-01")
	c.LastTrade = "09:30"
	assert.Error(t, r.Save(context.Background(), c, false))
}

func TestWithDefaults(t *testing.T) {
	r := openRepo(t)
	r.WithDefaults(func(date string) types.TradingDayConfig {
		c := types.DefaultDayConfig(date)
		c.Enabled = false
		return c
	})

	c, err := r.GetOrCreate(context.Background(), "2024-12-25")
	require.NoError(t, err)
	assert.False(t, c.Enabled)
}

func TestSummaryUpsert(t *testing.T) {
	r := openRepo(t)
	ctx := context.Background()

	_, found, err := r.Summary(ctx, "2024-10-01")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, r.SaveSummary(ctx, types.DaySummary{Date: "2024-10-01", PnL: 1200, LegCount: 2, Closed: false}))
	require.NoError(t, r.SaveSummary(ctx, types.DaySummary{Date: "2024-10-01", PnL: 4200.5, LegCount: 2, Closed: true}))

	s, found, err := r.Summary(ctx, "2024-10-01")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 4200.5, s.PnL)
	assert.True(t, s.Closed)
	assert.False(t, s.CreatedAt.IsZero())
}
