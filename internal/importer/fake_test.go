package importer

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/bartek5186/barsync/internal/backend"
)

// fakeClient - backend w pamięci; zapisuje kolejność zdarzeń update.
type fakeClient struct {
	mu        sync.Mutex
	records   []backend.Record
	nextID    int
	failIDs   map[string]bool
	createErr error
	listCalls int
	events    []string // "start:<id>" / "end:<id>"
	delay     time.Duration
}

func newFakeClient(recs ...backend.Record) *fakeClient {
	return &fakeClient{records: recs, nextID: 1000, failIDs: map[string]bool{}}
}

func (f *fakeClient) Name() string { return "fake" }

func (f *fakeClient) List(ctx context.Context, entity string, filter backend.Query) ([]backend.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	return append([]backend.Record(nil), f.records...), nil
}

func (f *fakeClient) Create(ctx context.Context, entity string, data map[string]any) (backend.Record, error) {
	recs, err := f.BulkCreate(ctx, entity, []map[string]any{data})
	if err != nil {
		return backend.Record{}, err
	}
	return recs[0], nil
}

func (f *fakeClient) BulkCreate(ctx context.Context, entity string, items []map[string]any) ([]backend.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	out := make([]backend.Record, 0, len(items))
	for _, it := range items {
		f.nextID++
		r := backend.Record{ID: strconv.Itoa(f.nextID), Data: it}
		f.records = append(f.records, r)
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeClient) Update(ctx context.Context, entity, id string, changes map[string]any) (backend.Record, error) {
	f.mu.Lock()
	f.events = append(f.events, "start:"+id)
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, "end:"+id)
	if f.failIDs[id] {
		return backend.Record{}, fmt.Errorf("update %s rejected", id)
	}
	for i := range f.records {
		if f.records[i].ID == id {
			for k, v := range changes {
				f.records[i].Data[k] = v
			}
			return f.records[i], nil
		}
	}
	return backend.Record{}, &backend.StatusError{Code: 404, Method: "PATCH", Path: id}
}

func (f *fakeClient) record(id string) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.ID == id {
			return r.Data
		}
	}
	return nil
}

// fakeBulkClient dokłada BulkUpdate
type fakeBulkClient struct {
	*fakeClient
	bulkCalls int
	bulkErr   error
}

func (f *fakeBulkClient) BulkUpdate(ctx context.Context, entity string, ops []backend.UpdateOp) error {
	f.mu.Lock()
	f.bulkCalls++
	f.mu.Unlock()
	if f.bulkErr != nil {
		return f.bulkErr
	}
	for _, op := range ops {
		if _, err := f.fakeClient.Update(ctx, entity, op.ID, op.Data); err != nil {
			return err
		}
	}
	return nil
}

// fakeExtractor - upload + ekstrakcja z gotową odpowiedzią
type fakeExtractor struct {
	out      backend.Extraction
	err      error
	uploads  int
	extracts int
	schema   map[string]any
}

func (f *fakeExtractor) Upload(ctx context.Context, name string, data []byte) (backend.FileRef, error) {
	f.uploads++
	return backend.FileRef{ID: "f1", URL: "mem://" + name, Name: name}, nil
}

func (f *fakeExtractor) Extract(ctx context.Context, ref backend.FileRef, schema map[string]any) (backend.Extraction, error) {
	f.extracts++
	f.schema = schema
	return f.out, f.err
}

func ingredient(id, name, sku string, price any, unit string) backend.Record {
	d := map[string]any{"name": name, "unit": unit}
	if sku != "" {
		d["sku_number"] = sku
	}
	if price != nil {
		d["cost_per_unit"] = price
	}
	return backend.Record{ID: id, Data: d}
}

func strp(s string) *string     { return &s }
func floatp(f float64) *float64 { return &f }
