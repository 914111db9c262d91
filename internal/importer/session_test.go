package importer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/bartek5186/barsync/internal/backend"
	"github.com/bartek5186/barsync/internal/db"
	"github.com/bartek5186/barsync/internal/events"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.ImportCompleted
}

func (p *recordingPublisher) PublishImportCompleted(_ context.Context, ev events.ImportCompleted) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Close() {}

type harness struct {
	svc    *Service
	client *fakeClient
	pub    *recordingPublisher
	ext    *fakeExtractor
	db     *db.Handle
}

func newHarness(t *testing.T, recs ...backend.Record) *harness {
	t.Helper()
	h, err := db.OpenInMemory()
	require.NoError(t, err)
	require.NoError(t, h.Migrate())
	t.Cleanup(func() { _ = h.Close() })

	f := newFakeClient(recs...)
	pub := &recordingPublisher{}
	ext := &fakeExtractor{}
	svc := NewService(zerolog.Nop(), Options{
		Client:    f,
		Uploader:  ext,
		Extractor: ext,
		Publisher: pub,
		DB:        h.DB,
		Retry:     backend.NoRetry(),
		Defaults:  Settings{UpdateBatchSize: 5, TitleCaseThreshold: 0.5, DefaultUnit: "oz"},
	})
	return &harness{svc: svc, client: f, pub: pub, ext: ext, db: h}
}

const priceList = "name,sku_number,cost_per_unit,unit\n" +
	"JOHNNIE WALKER BLACK,SKU100,45.00,oz\n" +
	"Campari,CMP-1,1.25,oz\n"

func TestSession_HappyPath(t *testing.T) {
	hs := newHarness(t, ingredient("1", "Johnnie Walker Black", "", 42.0, "oz"))
	ctx := context.Background()

	s, err := hs.svc.NewSession(KindIngredient, Env{Operator: "anna"})
	require.NoError(t, err)
	assert.Equal(t, StateIdle, s.State())

	sum, err := s.Preview(ctx, Input{Name: "prices.csv", Data: []byte(priceList)})
	require.NoError(t, err)
	assert.Equal(t, StatePreviewing, s.State())
	assert.Equal(t, 2, sum.Total)
	assert.Equal(t, 1, sum.New)
	assert.Equal(t, 1, sum.Updated)
	assert.Nil(t, sum.PreviouslyImportedAt)

	plan, err := s.Confirm(nil)
	require.NoError(t, err)
	assert.Len(t, plan.Creates, 1)
	assert.Len(t, plan.Updates, 1)

	res, err := s.Write(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, StateDone, s.State())
	assert.Equal(t, 45.0, hs.client.record("1")["cost_per_unit"])
	assert.Equal(t, "SKU100", hs.client.record("1")["sku_number"])

	v := s.Snapshot()
	assert.Equal(t, []State{StateIdle, StateParsing, StatePreviewing, StateConfirmed, StateWriting, StateDone}, v.Trail)
	assert.Equal(t, "prices.csv", v.Source)
	assert.Len(t, v.SHA256, 64)

	require.Len(t, hs.pub.events, 1)
	assert.Equal(t, "done", hs.pub.events[0].State)
	assert.Equal(t, "anna", hs.pub.events[0].Operator)

	recent, err := hs.svc.History().Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, s.ID, recent[0].ID)
	assert.Equal(t, "done", recent[0].State)
	assert.Equal(t, 1, recent[0].Created)
	assert.NotNil(t, recent[0].FinishedAt)

	// ten sam plik drugi raz - podgląd pokazuje poprzedni import
	again, err := hs.svc.NewSession(KindIngredient, Env{})
	require.NoError(t, err)
	sum, err = again.Preview(ctx, Input{Name: "prices-copy.csv", Data: []byte(priceList)})
	require.NoError(t, err)
	assert.NotNil(t, sum.PreviouslyImportedAt)
	assert.Equal(t, 2, sum.Unchanged)
}

func TestSession_RejectsOutOfOrderTransitions(t *testing.T) {
	hs := newHarness(t)
	s, err := hs.svc.NewSession(KindIngredient, Env{})
	require.NoError(t, err)

	_, err = s.Confirm(nil)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = s.Write(context.Background())
	var te *TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, StateIdle, te.From)
	assert.Equal(t, StateWriting, te.To)

	_, err = s.Preview(context.Background(), Input{Name: "a.csv", Data: []byte("name\nAperol\n")})
	require.NoError(t, err)
	_, err = s.Write(context.Background())
	assert.ErrorIs(t, err, ErrInvalidTransition, "write needs confirmation")
}

func TestSession_ReparseResets(t *testing.T) {
	hs := newHarness(t)
	ctx := context.Background()
	s, _ := hs.svc.NewSession(KindIngredient, Env{})

	_, err := s.Preview(ctx, Input{Name: "a.csv", Data: []byte("name\nAperol\n")})
	require.NoError(t, err)
	_, err = s.Confirm(nil)
	require.NoError(t, err)

	sum, err := s.Preview(ctx, Input{Text: "name,cost\nCampari,1\nLillet,2\n"})
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Total)
	v := s.Snapshot()
	assert.Equal(t, StatePreviewing, v.State)
	assert.Nil(t, v.Plan)
	assert.Equal(t, "text", v.Source)
	assert.Equal(t, []State{StateIdle, StateParsing, StatePreviewing, StateConfirmed, StateIdle, StateParsing, StatePreviewing}, v.Trail)

	require.NoError(t, s.Reset())
	assert.Equal(t, StateIdle, s.State())
	assert.Nil(t, s.Snapshot().Summary)
}

func TestSession_InputErrors(t *testing.T) {
	hs := newHarness(t)
	ctx := context.Background()
	s, _ := hs.svc.NewSession(KindIngredient, Env{})

	_, err := s.Preview(ctx, Input{})
	var ie *InputError
	require.ErrorAs(t, err, &ie)
	assert.ErrorIs(t, err, ErrEmptyInput)
	assert.Equal(t, StateIdle, s.State())

	_, err = s.Preview(ctx, Input{Name: "bad.csv", Data: []byte("foo,bar\n1,2\n")})
	require.ErrorAs(t, err, &ie)
	assert.ErrorIs(t, err, ErrNoHeader)
	assert.Equal(t, StateIdle, s.State())
	assert.NotEmpty(t, s.Snapshot().Error)

	for _, data := range []string{"name,sku_number,cost_per_unit,unit\n", "name,cost\n,1\n ,2\n"} {
		_, err = s.Preview(ctx, Input{Name: "empty.csv", Data: []byte(data)})
		require.ErrorAs(t, err, &ie, data)
		assert.ErrorIs(t, err, ErrEmptyInput, data)
		assert.Equal(t, "empty.csv", ie.Source)
		assert.Equal(t, StateIdle, s.State())
		assert.Nil(t, s.Snapshot().Summary)
	}

	_, err = s.Confirm(nil)
	assert.ErrorIs(t, err, ErrInvalidTransition, "nothing to confirm after an empty file")
	assert.Zero(t, hs.client.listCalls, "no backend read before a successful parse")
}

func TestSession_PartialFailure(t *testing.T) {
	hs := newHarness(t,
		ingredient("1", "Aperol", "", 1.0, "oz"),
		ingredient("2", "Campari", "", 1.0, "oz"),
	)
	hs.client.failIDs["2"] = true
	ctx := context.Background()

	s, _ := hs.svc.NewSession(KindIngredient, Env{})
	_, err := s.Preview(ctx, Input{Name: "p.csv", Data: []byte("name,cost\nAperol,2\nCampari,2\n")})
	require.NoError(t, err)
	_, err = s.Confirm(nil)
	require.NoError(t, err)

	res, err := s.Write(ctx)
	require.NoError(t, err, "individual failures are reported, not returned")
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, StatePartiallyFailed, s.State())
	assert.Equal(t, "1 of 2 updates failed", s.Snapshot().Error)

	fails, err := hs.svc.History().Failures(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, fails, 1)
	assert.Equal(t, "2", fails[0].RecordID)
	assert.Equal(t, "partially_failed", hs.pub.events[0].State)

	require.NoError(t, s.Reset())
	assert.Equal(t, StateIdle, s.State())
}

func TestSession_BulkCreateFailure(t *testing.T) {
	hs := newHarness(t)
	hs.client.createErr = errors.New("backend down")
	ctx := context.Background()

	s, _ := hs.svc.NewSession(KindIngredient, Env{})
	_, err := s.Preview(ctx, Input{Name: "p.csv", Data: []byte("name\nAperol\n")})
	require.NoError(t, err)
	_, err = s.Confirm(nil)
	require.NoError(t, err)

	_, err = s.Write(ctx)
	require.Error(t, err)
	assert.Equal(t, StatePartiallyFailed, s.State())
	assert.Contains(t, s.Snapshot().Error, "backend down")
}

func TestSession_ExtractionPath(t *testing.T) {
	hs := newHarness(t)
	hs.ext.out = backend.Extraction{
		Status: "success",
		Output: json.RawMessage(`{"ingredients":[{"name":"AMARO NONINO","cost_per_unit":2.1,"unit":"oz"}]}`),
	}
	s, _ := hs.svc.NewSession(KindIngredient, Env{})

	sum, err := s.Preview(context.Background(), Input{Name: "invoice.pdf", Data: []byte("%PDF-1.4 ...")})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.New)
	assert.Equal(t, 1, hs.ext.uploads)
	assert.Equal(t, "Amaro Nonino", s.Snapshot().Rows[0].Candidate.Name)
	assert.Contains(t, hs.ext.schema["properties"], "ingredients")
}

func TestSession_ExtractionTextFallback(t *testing.T) {
	hs := newHarness(t)
	hs.ext.out = backend.Extraction{Status: "success", Text: "Product;Cost\nSuze;1.5\n"}
	s, _ := hs.svc.NewSession(KindIngredient, Env{})

	sum, err := s.Preview(context.Background(), Input{Text: "Suze costs 1.5 a pour"})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Total)
}

func TestSession_ExtractionErrors(t *testing.T) {
	hs := newHarness(t)
	s, _ := hs.svc.NewSession(KindIngredient, Env{})

	hs.ext.out = backend.Extraction{Status: "error", Details: "could not read file"}
	_, err := s.Preview(context.Background(), Input{Name: "scan.png", Data: []byte{0x89, 'P', 'N', 'G'}})
	var ee *ExtractionError
	require.ErrorAs(t, err, &ee)
	assert.Contains(t, err.Error(), "could not read file")
	assert.Equal(t, StateIdle, s.State())

	hs.ext.out = backend.Extraction{Status: "success"}
	_, err = s.Preview(context.Background(), Input{Name: "scan.png", Data: []byte{0x89, 'P', 'N', 'G'}})
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "decode", ee.Stage)
}

func TestSession_NoExtractionConfigured(t *testing.T) {
	f := newFakeClient()
	svc := NewService(zerolog.Nop(), Options{Client: f, Retry: backend.NoRetry()})
	assert.False(t, svc.SupportsExtraction())

	s, err := svc.NewSession(KindAccount, Env{})
	require.NoError(t, err)
	_, err = s.Preview(context.Background(), Input{Name: "list.pdf", Data: []byte("x")})
	assert.ErrorIs(t, err, backend.ErrUnsupported)
}

func TestService_Run(t *testing.T) {
	hs := newHarness(t)
	s, err := hs.svc.Run(context.Background(), KindAccount, Env{Operator: "watch"},
		Input{Name: "accounts.csv", Data: []byte("Account Name,Account #,City\nthe rusty nail,ACC-1,Austin\n")}, nil)
	require.NoError(t, err)
	assert.Equal(t, StateDone, s.State())
	require.Len(t, hs.client.records, 1)
	assert.Equal(t, "The Rusty Nail", hs.client.records[0].Data["name"])
	assert.Equal(t, "ACC-1", hs.client.records[0].Data["account_number"])
}

func TestStore(t *testing.T) {
	hs := newHarness(t)
	s, _ := hs.svc.NewSession(KindIngredient, Env{})

	got, err := hs.svc.Store().Get(s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)
	assert.Len(t, hs.svc.Store().List(), 1)

	require.NoError(t, hs.svc.Store().Delete(s.ID))
	_, err = hs.svc.Store().Get(s.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, hs.svc.Store().Delete(s.ID), ErrSessionNotFound)
}
