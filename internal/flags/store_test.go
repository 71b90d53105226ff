package flags

import (
	"context"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open(OpenOptions{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestGetReturnsDefaultWhenAbsent(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	assert.Equal(t, "fallback", s.Get(ctx, AutoTradingEnabled, "fallback"))
	assert.True(t, s.GetBool(ctx, AutoTradingEnabled, true))
	assert.Equal(t, 7, s.GetInt(ctx, EntryLots, 7))
	assert.Equal(t, 1.5, s.GetFloat(ctx, DailyDelta, 1.5))
}

func TestTypedRoundTrip(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	require.NoError(t, SetBool(ctx, s, OpenPositions, true))
	require.NoError(t, SetInt(ctx, s, EntryLots, 12))
	require.NoError(t, SetFloat(ctx, s, StopLossLimit, -25000.5))

	assert.True(t, s.GetBool(ctx, OpenPositions, false))
	assert.Equal(t, 12, s.GetInt(ctx, EntryLots, 0))
	assert.Equal(t, -25000.5, s.GetFloat(ctx, StopLossLimit, 0))
}

func TestUnparsableValueFallsBackToDefault(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, EntryLots, "many", ""))
	require.NoError(t, s.Set(ctx, OpenPositions, "", ""))

	assert.Equal(t, 3, s.GetInt(ctx, EntryLots, 3))
	assert.False(t, s.GetBool(ctx, OpenPositions, false))
	assert.Equal(t, "many", s.Get(ctx, EntryLots, ""))
}

func TestSetKeepsDescription(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, AutoTradingEnabled, "true", "master kill switch"))
	require.NoError(t, s.Set(ctx, AutoTradingEnabled, "false", ""))

	all, err := s.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "false", all[0].Value)
	assert.Equal(t, "master kill switch", all[0].Description)
}

func TestSetRejectsEmptyName(t *testing.T) {
	s := openMemory(t)
	assert.Error(t, s.Set(context.Background(), "  ", "x", ""))
}

func TestAllListsOnlyFlags(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	require.NoError(t, SetBool(ctx, s, OpenPositions, false))
	require.NoError(t, SetFloat(ctx, s, IndiaVIX, 13.2))
	// a non-flag key in the shared database
	require.NoError(t, s.DB().Update(func(txn *badger.Txn) error {
		return txn.Set([]byte("progress:x"), []byte("1"))
	}))

	all, err := s.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
