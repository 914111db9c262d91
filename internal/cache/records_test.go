package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/bartek5186/barsync/internal/backend"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDisabledIsNoop(t *testing.T) {
	c, err := New(Options{Enabled: false}, zerolog.Nop())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k", []backend.Record{{ID: "1"}}))
	recs, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, recs)
	assert.NoError(t, c.Invalidate(ctx, "k"))
}

func TestNewEnabledValidatesURL(t *testing.T) {
	_, err := New(Options{Enabled: true}, zerolog.Nop())
	assert.Error(t, err)

	_, err = New(Options{Enabled: true, RedisURL: "not-a-url://"}, zerolog.Nop())
	assert.Error(t, err)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "barsync:records:http:Ingredient", Key("http", "Ingredient"))
}

func TestRecordsEncoding(t *testing.T) {
	in := []backend.Record{
		{ID: "7", Data: map[string]any{"name": "Campari", "cost_per_unit": 1.25, "exclusive": true, "sku_number": ""}},
		{ID: "8", Data: map[string]any{"name": "Aperol"}},
	}
	raw, err := encodeRecords(in)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"7","name":"Campari","cost_per_unit":1.25,"exclusive":true,"sku_number":""},{"id":"8","name":"Aperol"}]`, string(raw))

	out, err := decodeRecords(raw)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	// liczbowe id z backendu wraca jako tekst
	out, err = decodeRecords([]byte(`[{"id":42,"name":"Lillet"}]`))
	require.NoError(t, err)
	assert.Equal(t, "42", out[0].ID)
	assert.Equal(t, map[string]any{"name": "Lillet"}, out[0].Data)

	// pusta lista to trafienie, nie brak wpisu
	raw, err = encodeRecords(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(raw))
	out, err = decodeRecords(raw)
	require.NoError(t, err)
	assert.NotNil(t, out)
	assert.Empty(t, out)
}

func TestDecodeRecordsCorrupt(t *testing.T) {
	for _, raw := range []string{"", "{", "null", `{"id":"1"}`, `["x"]`} {
		_, err := decodeRecords([]byte(raw))
		assert.Error(t, err, raw)
	}
}

// BARSYNC_TEST_REDIS_URL=redis://localhost:6379/15 uruchamia test na żywym redisie
func TestRedisRecordCache(t *testing.T) {
	url := os.Getenv("BARSYNC_TEST_REDIS_URL")
	if url == "" {
		t.Skip("Skipping redis test. Set BARSYNC_TEST_REDIS_URL to run")
	}
	c, err := New(Options{Enabled: true, RedisURL: url, TTL: time.Minute}, zerolog.Nop())
	require.NoError(t, err)
	rc := c.(*redisRecordCache)

	ctx := context.Background()
	key := Key("test", "Ingredient:"+t.Name())
	t.Cleanup(func() { _ = rc.client.Del(context.Background(), key).Err() })

	_, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	recs := []backend.Record{{ID: "1", Data: map[string]any{"name": "Campari", "cost_per_unit": 1.25}}}
	require.NoError(t, c.Set(ctx, key, recs))
	ttl, err := rc.client.TTL(ctx, key).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	got, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, recs, got)

	require.NoError(t, c.Invalidate(ctx, key))
	_, ok, err = c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	// uszkodzony wpis = brak, bez błędu
	require.NoError(t, rc.client.Set(ctx, key, "{not json", time.Minute).Err())
	got, ok, err = c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)
}
