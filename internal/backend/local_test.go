package backend

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/bartek5186/barsync/internal/db"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocal(t *testing.T, bulk bool) Client {
	h, err := db.OpenInMemory()
	require.NoError(t, err)
	require.NoError(t, h.Migrate())
	t.Cleanup(func() { _ = h.Close() })

	c, err := Build("local", zerolog.Nop(), json.RawMessage(`{"bulk_update":`+boolJSON(bulk)+`}`), Deps{DB: h.DB, DataDir: t.TempDir()})
	require.NoError(t, err)
	return c
}

func boolJSON(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func TestLocalStore_CreateListUpdate(t *testing.T) {
	c := newLocal(t, false)
	ctx := context.Background()

	created, err := c.BulkCreate(ctx, "Ingredient", []map[string]any{
		{"name": "Campari", "unit": "oz", "cost_per_unit": 1.5},
		{"name": "Aperol", "unit": "oz"},
	})
	require.NoError(t, err)
	require.Len(t, created, 2)

	_, err = c.Create(ctx, "Account", map[string]any{"name": "The Rusty Nail"})
	require.NoError(t, err)

	recs, err := c.List(ctx, "Ingredient", nil)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "Campari", recs[0].Data["name"])

	filtered, err := c.List(ctx, "Ingredient", Query{"name": "Aperol"})
	require.NoError(t, err)
	require.Len(t, filtered, 1)

	rec, err := c.Update(ctx, "Ingredient", created[1].ID, map[string]any{"sku_number": "AP-1"})
	require.NoError(t, err)
	assert.Equal(t, "AP-1", rec.Data["sku_number"])
	assert.Equal(t, "Aperol", rec.Data["name"])

	_, err = c.Update(ctx, "Ingredient", "999", map[string]any{"x": 1})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 404, se.Code)

	_, err = c.Update(ctx, "Account", created[0].ID, map[string]any{"x": 1})
	assert.ErrorAs(t, err, &se)

	_, ok := c.(BulkUpdater)
	assert.False(t, ok)
}

func TestLocalStore_BulkUpdateIsAtomic(t *testing.T) {
	c := newLocal(t, true)
	ctx := context.Background()

	created, err := c.BulkCreate(ctx, "Ingredient", []map[string]any{{"name": "A"}, {"name": "B"}})
	require.NoError(t, err)

	bu, ok := c.(BulkUpdater)
	require.True(t, ok)

	require.NoError(t, bu.BulkUpdate(ctx, "Ingredient", []UpdateOp{
		{ID: created[0].ID, Data: map[string]any{"cost_per_unit": 2.0}},
		{ID: created[1].ID, Data: map[string]any{"cost_per_unit": 3.0}},
	}))

	err = bu.BulkUpdate(ctx, "Ingredient", []UpdateOp{
		{ID: created[0].ID, Data: map[string]any{"cost_per_unit": 9.0}},
		{ID: "404", Data: map[string]any{"cost_per_unit": 9.0}},
	})
	require.Error(t, err)

	recs, err := c.List(ctx, "Ingredient", nil)
	require.NoError(t, err)
	assert.Equal(t, 2.0, recs[0].Data["cost_per_unit"])
	assert.Equal(t, 3.0, recs[1].Data["cost_per_unit"])
}

func TestLocalStore_Upload(t *testing.T) {
	c := newLocal(t, false)
	up, ok := c.(Uploader)
	require.True(t, ok)

	ref, err := up.Upload(context.Background(), "list.csv", []byte("name\nCampari\n"))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(ref.URL, "file://"))

	data, err := os.ReadFile(strings.TrimPrefix(ref.URL, "file://"))
	require.NoError(t, err)
	assert.Equal(t, "name\nCampari\n", string(data))

	_, ok = c.(Extractor)
	assert.False(t, ok)
}
