package importer

import (
	"context"
	"time"

	"github.com/bartek5186/barsync/internal/backend"
	"github.com/bartek5186/barsync/internal/cache"
	"github.com/bartek5186/barsync/internal/events"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Options - zależności serwisu; puste pola dostają wersje no-op.
type Options struct {
	Client    backend.Client
	Uploader  backend.Uploader
	Extractor backend.Extractor
	Cache     cache.RecordCache
	Publisher events.Publisher
	DB        *gorm.DB
	Retry     backend.RetryPolicy
	Defaults  Settings
}

// Service składa potok importu i wydaje sesje.
type Service struct {
	log        zerolog.Logger
	client     backend.Client
	reader     *Reader
	extraction *Extraction
	history    *History
	publisher  events.Publisher
	retry      backend.RetryPolicy
	defaults   Settings
	store      *Store
}

func NewService(log zerolog.Logger, opts Options) *Service {
	if opts.Publisher == nil {
		opts.Publisher = events.Noop{}
	}
	// uploader/extractor domyślnie z klienta, jeśli to potrafi
	if opts.Uploader == nil {
		if up, ok := opts.Client.(backend.Uploader); ok {
			opts.Uploader = up
		}
	}
	if opts.Extractor == nil {
		if ex, ok := opts.Client.(backend.Extractor); ok {
			opts.Extractor = ex
		}
	}
	var ext *Extraction
	if opts.Uploader != nil && opts.Extractor != nil {
		ext = NewExtraction(log, opts.Uploader, opts.Extractor, opts.Retry)
	}
	return &Service{
		log:        log,
		client:     opts.Client,
		reader:     NewReader(log, opts.Client, opts.Retry, opts.Cache),
		extraction: ext,
		history:    NewHistory(opts.DB),
		publisher:  opts.Publisher,
		retry:      opts.Retry,
		defaults:   opts.Defaults,
		store:      NewStore(),
	}
}

func (svc *Service) Store() *Store { return svc.store }

func (svc *Service) History() *History { return svc.history }

func (svc *Service) SupportsExtraction() bool { return svc.extraction != nil }

// settings uzupełnia brakujące pola domyślnymi
func (svc *Service) settings(s Settings) Settings {
	if s.UpdateBatchSize <= 0 {
		s.UpdateBatchSize = svc.defaults.UpdateBatchSize
	}
	if s.TitleCaseThreshold <= 0 {
		s.TitleCaseThreshold = svc.defaults.TitleCaseThreshold
	}
	if s.DefaultUnit == "" {
		s.DefaultUnit = svc.defaults.DefaultUnit
	}
	return s
}

// NewSession tworzy sesję w stanie Idle i rejestruje ją w magazynie.
func (svc *Service) NewSession(kind Kind, env Env) (*Session, error) {
	schema, err := SchemaFor(kind)
	if err != nil {
		return nil, err
	}
	env.Settings = svc.settings(env.Settings)
	if env.Settings.DefaultUnit != "" {
		schema = schema.WithDefaultUnit(env.Settings.DefaultUnit)
	}
	now := time.Now()
	id := uuid.NewString()
	s := &Session{
		ID:        id,
		Kind:      kind,
		env:       env,
		schema:    schema,
		svc:       svc,
		log:       svc.log.With().Str("session", id).Str("kind", string(kind)).Logger(),
		state:     StateIdle,
		trail:     []State{StateIdle},
		createdAt: now,
		updatedAt: now,
	}
	svc.store.Put(s)
	return s, nil
}

// Run - preview + confirm + write bez interakcji (watch folder, --yes).
func (svc *Service) Run(ctx context.Context, kind Kind, env Env, in Input, skipRows []int) (*Session, error) {
	s, err := svc.NewSession(kind, env)
	if err != nil {
		return nil, err
	}
	if _, err := s.Preview(ctx, in); err != nil {
		return s, err
	}
	if _, err := s.Confirm(skipRows); err != nil {
		return s, err
	}
	_, err = s.Write(ctx)
	return s, err
}

// Existing - aktualne rekordy danego rodzaju (przez cache, jak w podglądzie)
func (svc *Service) Existing(ctx context.Context, kind Kind) ([]Existing, error) {
	schema, err := SchemaFor(kind)
	if err != nil {
		return nil, err
	}
	return svc.reader.Load(ctx, schema)
}

func (svc *Service) Close() {
	svc.publisher.Close()
}
