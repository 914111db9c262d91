package importer

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/bartek5186/barsync/internal/backend"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const DefaultBatchSize = 5

// WriteFailure - pojedyncza nieudana aktualizacja
type WriteFailure struct {
	Row   int    `json:"row"`
	ID    string `json:"id"`
	Name  string `json:"name"`
	Error string `json:"error"`
}

type WriteResult struct {
	Created  int            `json:"created"`
	Updated  int            `json:"updated"`
	Failed   int            `json:"failed"`
	Batches  int            `json:"batches"`
	Bulk     bool           `json:"bulk"`
	Failures []WriteFailure `json:"failures,omitempty"`
}

// Partial - część zapisów się nie powiodła
func (r WriteResult) Partial() bool { return r.Failed > 0 }

// Writer zapisuje plan: tworzenie jednym bulk-create, aktualizacje przez
// BulkUpdate jeśli backend go ma, inaczej pojedynczo w sekwencyjnych
// paczkach po batchSize (paczka N+1 startuje po zakończeniu wszystkich z N).
type Writer struct {
	log       zerolog.Logger
	client    backend.Client
	bulk      backend.BulkUpdater
	batchSize int
}

// NewWriter owija klienta polityką ponowień i raz sprawdza zdolność BulkUpdater.
func NewWriter(log zerolog.Logger, client backend.Client, policy backend.RetryPolicy, batchSize int) *Writer {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	c := backend.WithRetry(client, policy, log)
	w := &Writer{log: log, client: c, batchSize: batchSize}
	if bu, ok := c.(backend.BulkUpdater); ok {
		w.bulk = bu
	}
	return w
}

func (w *Writer) SupportsBulkUpdate() bool { return w.bulk != nil }

// Write wykonuje plan. Błąd bulk-create (lub bulk-update) przerywa zapis i
// jest zwracany; błędy pojedynczych aktualizacji są logowane i liczone.
func (w *Writer) Write(ctx context.Context, p Plan) (WriteResult, error) {
	res := WriteResult{Bulk: w.bulk != nil}

	if len(p.Creates) > 0 {
		created, err := w.client.BulkCreate(ctx, p.Entity, p.Creates)
		if err != nil {
			return res, fmt.Errorf("bulk create %d %s records: %w", len(p.Creates), p.Entity, err)
		}
		res.Created = len(p.Creates)
		if len(created) > 0 {
			res.Created = len(created)
		}
		w.log.Info().Str("entity", p.Entity).Int("created", res.Created).Msg("bulk create done")
	}

	if len(p.Updates) == 0 {
		return res, nil
	}

	if w.bulk != nil {
		ops := make([]backend.UpdateOp, 0, len(p.Updates))
		for _, u := range p.Updates {
			ops = append(ops, backend.UpdateOp{ID: u.ID, Data: u.Changes})
		}
		res.Batches = 1
		if err := w.bulk.BulkUpdate(ctx, p.Entity, ops); err != nil {
			res.Failed = len(p.Updates)
			return res, fmt.Errorf("bulk update %d %s records: %w", len(ops), p.Entity, err)
		}
		res.Updated = len(p.Updates)
		w.log.Info().Str("entity", p.Entity).Int("updated", res.Updated).Msg("bulk update done")
		return res, nil
	}

	var mu sync.Mutex
	for start := 0; start < len(p.Updates); start += w.batchSize {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		end := min(start+w.batchSize, len(p.Updates))
		batch := p.Updates[start:end]
		res.Batches++

		// errgroup tylko do czekania na całą paczkę; błąd nie anuluje reszty
		var g errgroup.Group
		for _, u := range batch {
			g.Go(func() error {
				_, err := w.client.Update(ctx, p.Entity, u.ID, u.Changes)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					res.Failed++
					res.Failures = append(res.Failures, WriteFailure{Row: u.Row, ID: u.ID, Name: u.Name, Error: err.Error()})
					w.log.Error().Err(err).Str("entity", p.Entity).Str("id", u.ID).Str("name", u.Name).Msg("update failed, skipping")
					return nil
				}
				res.Updated++
				return nil
			})
		}
		_ = g.Wait()
		w.log.Debug().Int("batch", res.Batches).Int("size", len(batch)).Msg("update batch settled")
	}

	sort.SliceStable(res.Failures, func(i, j int) bool { return res.Failures[i].Row < res.Failures[j].Row })
	w.log.Info().
		Str("entity", p.Entity).
		Int("updated", res.Updated).
		Int("failed", res.Failed).
		Int("batches", res.Batches).
		Msg("individual updates done")
	return res, nil
}
