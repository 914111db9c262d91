package backend

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// RetryPolicy - polityka ponowień wokół wywołań backendu.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64
	Retryable   func(error) bool
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 4,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    8 * time.Second,
		Jitter:      0.2,
		Retryable:   IsRetryable,
	}
}

// NoRetry - dokładnie jedna próba
func NoRetry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 1}
}

// IsRetryable: 429 i 5xx
func IsRetryable(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	return se.Code == http.StatusTooManyRequests || se.Code >= 500
}

func (p RetryPolicy) retryable() func(error) bool {
	if p.Retryable == nil {
		return IsRetryable
	}
	return p.Retryable
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	if b.InitialInterval <= 0 {
		b.InitialInterval = 100 * time.Millisecond
	}
	b.MaxInterval = p.MaxDelay
	if b.MaxInterval < b.InitialInterval {
		b.MaxInterval = b.InitialInterval
	}
	b.Multiplier = 2
	b.RandomizationFactor = p.Jitter
	b.MaxElapsedTime = 0
	b.Reset()

	retries := p.MaxAttempts - 1
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}

// Do wykonuje op z ponowieniami; błędy nie-retryable wracają od razu.
func (p RetryPolicy) Do(ctx context.Context, op func() error) error {
	retryable := p.retryable()
	return backoff.Retry(func() error {
		err := op()
		if err != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, p.backOff(ctx))
}

// WithRetry owija klienta polityką ponowień; zachowuje zdolność BulkUpdater.
func WithRetry(c Client, p RetryPolicy, log zerolog.Logger) Client {
	rc := &retryClient{inner: c, policy: p, log: log}
	if bu, ok := c.(BulkUpdater); ok {
		return &retryBulkClient{retryClient: rc, bulk: bu}
	}
	return rc
}

type retryClient struct {
	inner  Client
	policy RetryPolicy
	log    zerolog.Logger
}

func (r *retryClient) Name() string { return r.inner.Name() }

func (r *retryClient) do(ctx context.Context, what string, op func() error) error {
	retryable := r.policy.retryable()
	attempt := 0
	return r.policy.Do(ctx, func() error {
		attempt++
		err := op()
		if err != nil && retryable(err) {
			r.log.Warn().Err(err).Str("op", what).Int("attempt", attempt).Msg("retryable backend error")
		}
		return err
	})
}

func (r *retryClient) List(ctx context.Context, entity string, filter Query) ([]Record, error) {
	var out []Record
	err := r.do(ctx, "list", func() error {
		var err error
		out, err = r.inner.List(ctx, entity, filter)
		return err
	})
	return out, err
}

func (r *retryClient) Create(ctx context.Context, entity string, data map[string]any) (Record, error) {
	var out Record
	err := r.do(ctx, "create", func() error {
		var err error
		out, err = r.inner.Create(ctx, entity, data)
		return err
	})
	return out, err
}

func (r *retryClient) BulkCreate(ctx context.Context, entity string, items []map[string]any) ([]Record, error) {
	var out []Record
	err := r.do(ctx, "bulk_create", func() error {
		var err error
		out, err = r.inner.BulkCreate(ctx, entity, items)
		return err
	})
	return out, err
}

func (r *retryClient) Update(ctx context.Context, entity, id string, changes map[string]any) (Record, error) {
	var out Record
	err := r.do(ctx, "update", func() error {
		var err error
		out, err = r.inner.Update(ctx, entity, id, changes)
		return err
	})
	return out, err
}

type retryBulkClient struct {
	*retryClient
	bulk BulkUpdater
}

func (r *retryBulkClient) BulkUpdate(ctx context.Context, entity string, ops []UpdateOp) error {
	return r.do(ctx, "bulk_update", func() error {
		return r.bulk.BulkUpdate(ctx, entity, ops)
	})
}
