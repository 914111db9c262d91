package importer

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/bartek5186/barsync/internal/backend"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twelveUpdates(f *fakeClient) Plan {
	p := Plan{Entity: "Ingredient"}
	for i := 1; i <= 12; i++ {
		id := strconv.Itoa(i)
		f.records = append(f.records, ingredient(id, "Item "+id, "", 1.0, "oz"))
		p.Updates = append(p.Updates, PlannedUpdate{Row: i + 1, ID: id, Name: "Item " + id, Changes: ChangeSet{"cost_per_unit": 2.0}})
	}
	return p
}

// batchOf - numer paczki (od 0) dla id "1".."12" przy paczkach po 5
func batchOf(id string) int {
	n, _ := strconv.Atoi(id)
	return (n - 1) / 5
}

func TestWriter_ScenarioE_SequentialBatchesIsolateFailure(t *testing.T) {
	f := newFakeClient()
	f.delay = 5 * time.Millisecond
	f.failIDs["7"] = true
	p := twelveUpdates(f)

	w := NewWriter(zerolog.Nop(), f, backend.NoRetry(), 5)
	require.False(t, w.SupportsBulkUpdate())

	res, err := w.Write(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Batches)
	assert.Equal(t, 11, res.Updated)
	assert.Equal(t, 1, res.Failed)
	assert.True(t, res.Partial())
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "7", res.Failures[0].ID)
	assert.Equal(t, 8, res.Failures[0].Row)

	for i := 1; i <= 12; i++ {
		if i == 7 {
			continue
		}
		assert.Equal(t, 2.0, f.record(strconv.Itoa(i))["cost_per_unit"], "item %d", i)
	}

	// żaden start z paczki N+1 przed końcem wszystkich z paczki N
	ended := map[int]int{}
	sizes := map[int]int{0: 5, 1: 5, 2: 2}
	for _, ev := range f.events {
		kind, id, _ := strings.Cut(ev, ":")
		b := batchOf(id)
		if kind == "start" {
			for prev := 0; prev < b; prev++ {
				assert.Equal(t, sizes[prev], ended[prev], "batch %d started before batch %d settled", b, prev)
			}
			continue
		}
		ended[b]++
	}
	assert.Equal(t, sizes, ended)
}

func TestWriter_BulkUpdatePath(t *testing.T) {
	f := &fakeBulkClient{fakeClient: newFakeClient()}
	p := twelveUpdates(f.fakeClient)

	w := NewWriter(zerolog.Nop(), f, backend.NoRetry(), 5)
	require.True(t, w.SupportsBulkUpdate())

	res, err := w.Write(context.Background(), p)
	require.NoError(t, err)
	assert.True(t, res.Bulk)
	assert.Equal(t, 1, f.bulkCalls)
	assert.Equal(t, 1, res.Batches)
	assert.Equal(t, 12, res.Updated)
	assert.Zero(t, res.Failed)
}

func TestWriter_BulkUpdateFailureCountsAll(t *testing.T) {
	f := &fakeBulkClient{fakeClient: newFakeClient(), bulkErr: errors.New("bulk rejected")}
	p := twelveUpdates(f.fakeClient)

	res, err := NewWriter(zerolog.Nop(), f, backend.NoRetry(), 5).Write(context.Background(), p)
	require.Error(t, err)
	assert.Equal(t, 12, res.Failed)
	assert.Zero(t, res.Updated)
	assert.Empty(t, f.events, "no per-item fallback after a bulk failure")
}

func TestWriter_CreatesInOneCall(t *testing.T) {
	f := newFakeClient()
	p := Plan{Entity: "Ingredient", Creates: []map[string]any{{"name": "A"}, {"name": "B"}}}

	res, err := NewWriter(zerolog.Nop(), f, backend.NoRetry(), 0).Write(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Created)
	assert.Len(t, f.records, 2)
	assert.False(t, res.Partial())
}

func TestWriter_BulkCreateFailureAborts(t *testing.T) {
	f := newFakeClient()
	f.createErr = &backend.StatusError{Code: 422, Method: "POST", Path: "/entities/Ingredient/bulk"}
	p := twelveUpdates(f)
	p.Creates = []map[string]any{{"name": "A"}}

	res, err := NewWriter(zerolog.Nop(), f, backend.NoRetry(), 5).Write(context.Background(), p)
	var se *backend.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 422, se.Code)
	assert.Zero(t, res.Created)
	assert.Empty(t, f.events, "updates are not attempted after a failed create")
}

func TestWriter_RetriesTransientUpdateErrors(t *testing.T) {
	f := newFakeClient(ingredient("1", "A", "", 1.0, "oz"))
	flaky := &flakyUpdates{fakeClient: f, fails: 2}
	p := Plan{Entity: "Ingredient", Updates: []PlannedUpdate{{Row: 2, ID: "1", Changes: ChangeSet{"cost_per_unit": 3.0}}}}

	policy := backend.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
	res, err := NewWriter(zerolog.Nop(), flaky, policy, 5).Write(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, 3, flaky.calls)
}

// flakyUpdates - pierwsze `fails` aktualizacji kończy się 503
type flakyUpdates struct {
	*fakeClient
	fails int
	calls int
}

func (f *flakyUpdates) Update(ctx context.Context, entity, id string, changes map[string]any) (backend.Record, error) {
	f.calls++
	if f.calls <= f.fails {
		return backend.Record{}, &backend.StatusError{Code: 503, Method: "PATCH", Path: id}
	}
	return f.fakeClient.Update(ctx, entity, id, changes)
}
