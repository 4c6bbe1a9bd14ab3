package store_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/ferrexpert/cotizador/internal/store"
)

func newTestKV(t *testing.T) *store.KV {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return store.New(client)
}

func TestGetJSONMissingKeyIsEmpty(t *testing.T) {
	kv := newTestKV(t)
	var out []string
	found, err := kv.GetJSON(context.Background(), store.KeyClients, &out)
	require.NoError(t, err)
	require.False(t, found)
	require.Empty(t, out)
}

func TestSetThenGetJSON(t *testing.T) {
	kv := newTestKV(t)
	ctx := context.Background()

	in := map[string]any{"rut": "12.345.678-9", "entidad": "Empresa B"}
	require.NoError(t, kv.SetJSON(ctx, store.KeyClients, in))

	var out map[string]any
	found, err := kv.GetJSON(ctx, store.KeyClients, &out)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "Empresa B", out["entidad"])
}

func TestNextCounterStartsAtOne(t *testing.T) {
	kv := newTestKV(t)
	ctx := context.Background()

	n, err := kv.NextCounter(ctx, store.KeyQuoteCounter)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	n, err = kv.NextCounter(ctx, store.KeyQuoteCounter)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)
}
