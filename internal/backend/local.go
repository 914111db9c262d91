package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bartek5186/barsync/internal/db"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

type LocalConfig struct {
	BulkUpdate bool   `json:"bulk_update"`
	FilesDir   string `json:"files_dir,omitempty"`
}

// LocalStore - backend trzymający encje w tabeli entity_records (gorm).
// Przydaje się offline i w testach; ekstrakcji nie obsługuje.
type LocalStore struct {
	log      zerolog.Logger
	db       *gorm.DB
	filesDir string
}

type localBulkStore struct {
	*LocalStore
}

func NewLocalStore(log zerolog.Logger, gdb *gorm.DB, cfg LocalConfig) (Client, error) {
	if gdb == nil {
		return nil, errors.New("local backend: brak *gorm.DB")
	}
	s := &LocalStore{log: log, db: gdb, filesDir: cfg.FilesDir}
	if cfg.BulkUpdate {
		return &localBulkStore{LocalStore: s}, nil
	}
	return s, nil
}

func (s *LocalStore) Name() string { return "local" }

func (s *LocalStore) List(ctx context.Context, entity string, filter Query) ([]Record, error) {
	var rows []db.EntityRecord
	if err := s.db.WithContext(ctx).
		Where("entity = ?", entity).
		Order("id").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("local list %s: %w", entity, err)
	}

	out := make([]Record, 0, len(rows))
	for _, r := range rows {
		rec, err := decodeRow(r)
		if err != nil {
			return nil, err
		}
		if matchesFilter(rec, filter) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *LocalStore) Create(ctx context.Context, entity string, data map[string]any) (Record, error) {
	recs, err := s.BulkCreate(ctx, entity, []map[string]any{data})
	if err != nil {
		return Record{}, err
	}
	return recs[0], nil
}

func (s *LocalStore) BulkCreate(ctx context.Context, entity string, items []map[string]any) ([]Record, error) {
	if len(items) == 0 {
		return nil, nil
	}
	rows := make([]db.EntityRecord, 0, len(items))
	for _, it := range items {
		b, err := json.Marshal(it)
		if err != nil {
			return nil, fmt.Errorf("local create %s: %w", entity, err)
		}
		rows = append(rows, db.EntityRecord{Entity: entity, Data: string(b)})
	}

	const batchSize = 500
	if err := s.db.WithContext(ctx).CreateInBatches(&rows, batchSize).Error; err != nil {
		return nil, fmt.Errorf("local bulk create %s: %w", entity, err)
	}
	out := make([]Record, 0, len(items))
	for i, r := range rows {
		out = append(out, Record{ID: strconv.FormatUint(uint64(r.ID), 10), Data: cloneMap(items[i])})
	}
	s.log.Debug().Str("entity", entity).Int("n", len(rows)).Msg("local bulk create")
	return out, nil
}

func (s *LocalStore) Update(ctx context.Context, entity, id string, changes map[string]any) (Record, error) {
	var out Record
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		out, err = mergeRow(tx, entity, id, changes)
		return err
	})
	return out, err
}

func (s *localBulkStore) BulkUpdate(ctx context.Context, entity string, ops []UpdateOp) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, op := range ops {
			if _, err := mergeRow(tx, entity, op.ID, op.Data); err != nil {
				return err
			}
		}
		s.log.Debug().Str("entity", entity).Int("n", len(ops)).Msg("local bulk update")
		return nil
	})
}

// Upload zapisuje plik w files_dir i zwraca URL file://
func (s *LocalStore) Upload(ctx context.Context, name string, data []byte) (FileRef, error) {
	if s.filesDir == "" {
		return FileRef{}, fmt.Errorf("local upload: %w", ErrUnsupported)
	}
	if err := os.MkdirAll(s.filesDir, 0o755); err != nil {
		return FileRef{}, err
	}
	id := uuid.NewString()
	full := filepath.Join(s.filesDir, id+"_"+filepath.Base(name))
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return FileRef{}, fmt.Errorf("local upload %s: %w", name, err)
	}
	abs, _ := filepath.Abs(full)
	return FileRef{ID: id, URL: "file://" + filepath.ToSlash(abs), Name: name}, nil
}

func mergeRow(tx *gorm.DB, entity, id string, changes map[string]any) (Record, error) {
	notFound := &StatusError{Code: 404, Method: "PATCH", Path: entity + "/" + id, Body: "record not found"}
	rowID, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return Record{}, notFound
	}
	var row db.EntityRecord
	err = tx.Where("id = ? AND entity = ?", rowID, entity).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Record{}, notFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("local update %s/%s: %w", entity, id, err)
	}

	rec, err := decodeRow(row)
	if err != nil {
		return Record{}, err
	}
	for k, v := range changes {
		rec.Data[k] = v
	}
	b, err := json.Marshal(rec.Data)
	if err != nil {
		return Record{}, err
	}
	if err := tx.Model(&db.EntityRecord{}).
		Where("id = ?", rowID).
		Update("data", string(b)).Error; err != nil {
		return Record{}, fmt.Errorf("local update %s/%s: %w", entity, id, err)
	}
	return rec, nil
}

func decodeRow(r db.EntityRecord) (Record, error) {
	data := map[string]any{}
	if strings.TrimSpace(r.Data) != "" {
		if err := json.Unmarshal([]byte(r.Data), &data); err != nil {
			return Record{}, fmt.Errorf("local record %d: %w", r.ID, err)
		}
	}
	return Record{ID: strconv.FormatUint(uint64(r.ID), 10), Data: data}, nil
}

func matchesFilter(rec Record, filter Query) bool {
	for k, want := range filter {
		got, ok := rec.Data[k]
		if k == "id" {
			got, ok = rec.ID, true
		}
		if !ok || fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func localFactory(log zerolog.Logger, raw json.RawMessage, deps Deps) (Client, error) {
	var cfg LocalConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	if cfg.FilesDir == "" && deps.DataDir != "" {
		cfg.FilesDir = filepath.Join(deps.DataDir, "files")
	}
	return NewLocalStore(log, deps.DB, cfg)
}

func init() {
	Register("local", localFactory)
}
