package importer

import (
	"context"
	"fmt"

	"github.com/bartek5186/barsync/internal/backend"
	"github.com/bartek5186/barsync/internal/cache"
	"github.com/rs/zerolog"
)

// Reader wczytuje istniejące rekordy encji (z polityką ponowień i cache).
type Reader struct {
	log    zerolog.Logger
	client backend.Client
	cache  cache.RecordCache
}

func NewReader(log zerolog.Logger, client backend.Client, policy backend.RetryPolicy, rc cache.RecordCache) *Reader {
	if rc == nil {
		rc = cache.NewNoop()
	}
	return &Reader{log: log, client: backend.WithRetry(client, policy, log), cache: rc}
}

func (r *Reader) key(s Schema) string { return cache.Key(r.client.Name(), s.Entity) }

func (r *Reader) Load(ctx context.Context, s Schema) ([]Existing, error) {
	key := r.key(s)
	if recs, ok, err := r.cache.Get(ctx, key); err != nil {
		r.log.Warn().Err(err).Str("key", key).Msg("record cache read failed, listing from backend")
	} else if ok {
		r.log.Debug().Str("entity", s.Entity).Int("records", len(recs)).Msg("existing records from cache")
		return Project(recs, s), nil
	}

	recs, err := r.client.List(ctx, s.Entity, nil)
	if err != nil {
		return nil, fmt.Errorf("load existing %s: %w", s.Entity, err)
	}
	if err := r.cache.Set(ctx, key, recs); err != nil {
		r.log.Warn().Err(err).Str("key", key).Msg("record cache write failed")
	}
	r.log.Info().Str("entity", s.Entity).Int("records", len(recs)).Msg("existing records loaded")
	return Project(recs, s), nil
}

// Invalidate - po każdym zapisie
func (r *Reader) Invalidate(ctx context.Context, s Schema) {
	if err := r.cache.Invalidate(ctx, r.key(s)); err != nil {
		r.log.Warn().Err(err).Str("entity", s.Entity).Msg("record cache invalidate failed")
	}
}
