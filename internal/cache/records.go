package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bartek5186/barsync/internal/backend"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	defaultTTL = time.Minute
	keyPrefix  = "barsync:records:"
)

// RecordCache - cache listy istniejących rekordów encji.
type RecordCache interface {
	Get(ctx context.Context, key string) ([]backend.Record, bool, error)
	Set(ctx context.Context, key string, recs []backend.Record) error
	Invalidate(ctx context.Context, key string) error
}

type Options struct {
	Enabled  bool
	RedisURL string
	TTL      time.Duration
}

// Key buduje klucz cache dla backendu i encji
func Key(backendName, entity string) string {
	return keyPrefix + backendName + ":" + entity
}

// New zwraca cache redis albo no-op, gdy cache wyłączony.
func New(opts Options, log zerolog.Logger) (RecordCache, error) {
	if !opts.Enabled {
		return NewNoop(), nil
	}
	client, err := newRedisClient(opts)
	if err != nil {
		return nil, err
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	log.Info().Dur("ttl", ttl).Msg("record cache: redis enabled")
	return &redisRecordCache{client: client, ttl: ttl, log: log}, nil
}

func newRedisClient(opts Options) (*redis.Client, error) {
	if opts.RedisURL == "" {
		return nil, errors.New("redis url must be provided when cache is enabled")
	}
	o, err := redis.ParseURL(opts.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(o)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

type redisRecordCache struct {
	client *redis.Client
	ttl    time.Duration
	log    zerolog.Logger
}

func (c *redisRecordCache) Get(ctx context.Context, key string) ([]backend.Record, bool, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	recs, err := decodeRecords(raw)
	if err != nil {
		// uszkodzony wpis traktujemy jak brak
		c.log.Warn().Err(err).Str("key", key).Msg("record cache: corrupt entry")
		return nil, false, nil
	}
	return recs, true, nil
}

func (c *redisRecordCache) Set(ctx context.Context, key string, recs []backend.Record) error {
	raw, err := encodeRecords(recs)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (c *redisRecordCache) Invalidate(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

func encodeRecords(recs []backend.Record) ([]byte, error) {
	if recs == nil {
		recs = []backend.Record{}
	}
	return json.Marshal(recs)
}

// decodeRecords: wpis musi być listą JSON
func decodeRecords(raw []byte) ([]backend.Record, error) {
	var recs []backend.Record
	if err := json.Unmarshal(raw, &recs); err != nil {
		return nil, err
	}
	if recs == nil {
		return nil, errors.New("record cache: entry is not a list")
	}
	return recs, nil
}

type noopRecordCache struct{}

func NewNoop() RecordCache { return noopRecordCache{} }

func (noopRecordCache) Get(context.Context, string) ([]backend.Record, bool, error) {
	return nil, false, nil
}
func (noopRecordCache) Set(context.Context, string, []backend.Record) error { return nil }
func (noopRecordCache) Invalidate(context.Context, string) error            { return nil }
