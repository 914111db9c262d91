package syncer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bartek5186/barsync/internal/backend"
	conf "github.com/bartek5186/barsync/internal/config"
	"github.com/bartek5186/barsync/internal/db"
	"github.com/bartek5186/barsync/internal/importer"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	dir    string
	client backend.Client
	svc    *importer.Service
	db     *db.Handle
}

// failingUpdates - backend, w którym każda aktualizacja się nie udaje
type failingUpdates struct {
	backend.Client
}

func (failingUpdates) Update(context.Context, string, string, map[string]any) (backend.Record, error) {
	return backend.Record{}, errors.New("update rejected")
}

func newFixture(t *testing.T) fixture {
	return newFixtureWith(t, nil)
}

// newFixtureWith: wrap podmienia klienta widzianego przez import; f.client zostaje lokalnym magazynem
func newFixtureWith(t *testing.T, wrap func(backend.Client) backend.Client) fixture {
	t.Helper()
	h, err := db.OpenInMemory()
	require.NoError(t, err)
	require.NoError(t, h.Migrate())
	t.Cleanup(func() { _ = h.Close() })

	client, err := backend.NewLocalStore(zerolog.Nop(), h.DB, backend.LocalConfig{})
	require.NoError(t, err)
	var used backend.Client = client
	if wrap != nil {
		used = wrap(client)
	}
	svc := importer.NewService(zerolog.Nop(), importer.Options{
		Client:   used,
		DB:       h.DB,
		Retry:    backend.NoRetry(),
		Defaults: importer.Settings{UpdateBatchSize: 5, TitleCaseThreshold: 0.5, DefaultUnit: "oz"},
	})
	return fixture{dir: t.TempDir(), client: client, svc: svc, db: h}
}

func (f fixture) write(t *testing.T, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, name), []byte(body), 0o644))
}

func (f fixture) records(t *testing.T) []backend.Record {
	t.Helper()
	recs, err := f.client.List(context.Background(), "Ingredient", nil)
	require.NoError(t, err)
	return recs
}

func TestScanOnce_AutoConfirmWritesAndDedups(t *testing.T) {
	f := newFixture(t)
	f.write(t, "prices.csv", "name,sku,cost,unit\nCAMPARI,C-1,1.25,oz\nAperol,A-1,1.10,oz\n")
	f.write(t, "readme.md", "not an import")
	f.write(t, ".hidden.csv", "name\nx\n")

	s := New(zerolog.Nop(), f.svc, f.db, conf.WatchConfig{Dir: f.dir, Kind: "ingredient", AutoConfirm: true}, importer.Env{})
	ctx := context.Background()

	assert.Equal(t, 1, s.ScanOnce(ctx))
	recs := f.records(t)
	require.Len(t, recs, 2)
	assert.Equal(t, "Campari", recs[0].Data["name"])

	// ten sam plik nie jest przetwarzany drugi raz, nawet pod inną nazwą
	f.write(t, "prices-copy.csv", "name,sku,cost,unit\nCAMPARI,C-1,1.25,oz\nAperol,A-1,1.10,oz\n")
	assert.Equal(t, 0, s.ScanOnce(ctx))
	assert.Len(t, f.records(t), 2)

	mark, ok, err := f.db.GetKV("watch:" + f.svc.Store().List()[0].SHA256)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "done", mark)

	recent, err := f.svc.History().Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "watch", recent[0].Operator)
}

func TestScanOnce_RejectsUnreadableFileOnce(t *testing.T) {
	f := newFixture(t)
	f.write(t, "broken.csv", "foo,bar\n1,2\n")

	s := New(zerolog.Nop(), f.svc, f.db, conf.WatchConfig{Dir: f.dir, Kind: "ingredient", AutoConfirm: true}, importer.Env{})
	assert.Equal(t, 1, s.ScanOnce(context.Background()))
	assert.Equal(t, 0, s.ScanOnce(context.Background()))
	assert.Empty(t, f.records(t))
}

func TestScanOnce_RejectsHeaderOnlyFile(t *testing.T) {
	f := newFixture(t)
	f.write(t, "empty.csv", "name,sku,cost,unit\n")

	s := New(zerolog.Nop(), f.svc, f.db, conf.WatchConfig{Dir: f.dir, Kind: "ingredient", AutoConfirm: true}, importer.Env{})
	assert.Equal(t, 1, s.ScanOnce(context.Background()))
	assert.Equal(t, 0, s.ScanOnce(context.Background()), "rejected files are not retried")
	assert.Empty(t, f.records(t))

	views := f.svc.Store().List()
	require.Len(t, views, 1)
	assert.Equal(t, importer.StateIdle, views[0].State, "never previewed, never done")
	assert.NotEmpty(t, views[0].Error)
}

func TestScanOnce_GivesUpAfterMaxAttempts(t *testing.T) {
	f := newFixtureWith(t, func(c backend.Client) backend.Client { return failingUpdates{c} })
	ctx := context.Background()
	_, err := f.client.BulkCreate(ctx, "Ingredient", []map[string]any{
		{"name": "Campari", "sku_number": "C-1", "cost_per_unit": 1.0, "unit": "oz"},
	})
	require.NoError(t, err)

	body := "name,sku,cost,unit\nCampari,C-1,2,oz\n"
	f.write(t, "prices.csv", body)
	sum := sha256.Sum256([]byte(body))
	key := "watch:" + hex.EncodeToString(sum[:])
	mark := func() string {
		v, ok, err := f.db.GetKV(key)
		require.NoError(t, err)
		require.True(t, ok)
		return v
	}

	s := New(zerolog.Nop(), f.svc, f.db, conf.WatchConfig{Dir: f.dir, Kind: "ingredient", AutoConfirm: true, MaxAttempts: 2}, importer.Env{})
	assert.Equal(t, 1, s.ScanOnce(ctx))
	assert.Equal(t, "retry:1", mark())

	assert.Equal(t, 1, s.ScanOnce(ctx), "partial failure is retried")
	assert.Equal(t, "failed", mark())

	assert.Equal(t, 0, s.ScanOnce(ctx), "given up after max attempts")
	recs := f.records(t)
	require.Len(t, recs, 1)
	assert.Equal(t, 1.0, recs[0].Data["cost_per_unit"])
}

func TestMarkers(t *testing.T) {
	for _, m := range []string{"done", "previewing", "rejected", "failed"} {
		assert.True(t, terminal(m), m)
	}
	for _, m := range []string{"idle", "partially_failed", "retry:2"} {
		assert.False(t, terminal(m), m)
	}

	assert.Equal(t, 2, attempts("retry:2"))
	assert.Equal(t, 1, attempts("partially_failed"))
	assert.Equal(t, 1, attempts("idle"))
	assert.Equal(t, 1, attempts("retry:x"))
	assert.Equal(t, 1, attempts("retry:0"))
}

func TestScanOnce_PreviewOnly(t *testing.T) {
	f := newFixture(t)
	f.write(t, "prices.csv", "name,cost\nLillet,2\n")

	s := New(zerolog.Nop(), f.svc, f.db, conf.WatchConfig{Dir: f.dir, Kind: "ingredient"}, importer.Env{Operator: "ops"})
	assert.Equal(t, 1, s.ScanOnce(context.Background()))
	assert.Equal(t, 0, s.ScanOnce(context.Background()))
	assert.Empty(t, f.records(t), "nothing is written without confirmation")

	views := f.svc.Store().List()
	require.Len(t, views, 1)
	assert.Equal(t, importer.StatePreviewing, views[0].State)
	assert.Equal(t, "ops", views[0].Operator)
	assert.Equal(t, 1, views[0].Summary.New)
}

func TestStartStop(t *testing.T) {
	f := newFixture(t)
	dir := filepath.Join(f.dir, "nested", "in")

	s := New(zerolog.Nop(), f.svc, f.db, conf.WatchConfig{Dir: dir, Kind: "account", PollSec: 1}, importer.Env{})
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Start(context.Background()), "second start is a no-op")
	assert.True(t, s.IsRunning())
	assert.DirExists(t, dir)

	assert.Eventually(t, func() bool { return s.Scans() >= 1 }, 2*time.Second, 10*time.Millisecond)
	s.Stop()
	assert.False(t, s.IsRunning())
	s.Stop()
}

func TestStartRejectsUnknownKind(t *testing.T) {
	f := newFixture(t)
	s := New(zerolog.Nop(), f.svc, f.db, conf.WatchConfig{Dir: f.dir, Kind: "cocktail"}, importer.Env{})
	assert.Error(t, s.Start(context.Background()))
	assert.False(t, s.IsRunning())
}

func TestWatched(t *testing.T) {
	assert.True(t, watched("a.CSV"))
	assert.True(t, watched("b.xlsx"))
	assert.False(t, watched("~$b.xlsx"))
	assert.False(t, watched("c.pdf"))
}
