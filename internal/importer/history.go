package importer

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bartek5186/barsync/internal/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// History zapisuje przebieg sesji w bazie (import_sessions, duplicate_issues, write_failures).
type History struct {
	db *gorm.DB
}

func NewHistory(gdb *gorm.DB) *History {
	if gdb == nil {
		return nil
	}
	return &History{db: gdb}
}

// LastImported - kiedy plik o tym SHA-256 został ostatnio zapisany (Done).
func (h *History) LastImported(ctx context.Context, sha string) (*time.Time, error) {
	if h == nil || sha == "" {
		return nil, nil
	}
	var rec db.ImportSession
	err := h.db.WithContext(ctx).
		Where("sha256 = ? AND state = ?", sha, string(StateDone)).
		Order("finished_at desc").
		Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec.FinishedAt, nil
}

// SavePreview zapisuje/odświeża sesję po podglądzie i przebudowuje jej duplikaty.
func (h *History) SavePreview(ctx context.Context, s *Session) error {
	if h == nil {
		return nil
	}
	snap := s.Snapshot()
	rec := db.ImportSession{
		ID:       snap.ID,
		Kind:     string(snap.Kind),
		Operator: snap.Operator,
		Source:   snap.Source,
		SHA256:   snap.SHA256,
		State:    string(snap.State),
	}
	if snap.Summary != nil {
		rec.Total = snap.Summary.Total
		rec.NewCount = snap.Summary.New
		rec.UpdatedCount = snap.Summary.Updated
		rec.UnchangedCount = snap.Summary.Unchanged
	}

	return h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"source", "sha256", "state", "total", "new_count", "updated_count", "unchanged_count",
			}),
		}).Create(&rec).Error; err != nil {
			return err
		}

		// pełny rebuild duplikatów tej sesji
		if err := tx.Where("session_id = ?", snap.ID).Delete(&db.DuplicateIssue{}).Error; err != nil {
			return err
		}
		if snap.Summary == nil {
			return nil
		}
		var issues []db.DuplicateIssue
		for scope, dups := range map[string][]DuplicateID{
			"import":   snap.Summary.DuplicateIDs,
			"existing": snap.Summary.ExistingDuplicateIDs,
		} {
			for _, d := range dups {
				names, _ := json.Marshal(d.Names)
				issues = append(issues, db.DuplicateIssue{
					SessionID:  snap.ID,
					Scope:      scope,
					Identifier: d.Identifier,
					Names:      string(names),
					Count:      len(d.Names),
				})
			}
		}
		if len(issues) == 0 {
			return nil
		}
		return tx.Create(&issues).Error
	})
}

// SaveState - zmiana stanu bez wyniku zapisu (np. Confirmed, Writing)
func (h *History) SaveState(ctx context.Context, id string, state State, lastErr string) error {
	if h == nil {
		return nil
	}
	return h.db.WithContext(ctx).Model(&db.ImportSession{}).
		Where("id = ?", id).
		Updates(map[string]any{"state": string(state), "last_error": lastErr}).Error
}

// SaveResult zapisuje wynik zapisu i pojedyncze porażki.
func (h *History) SaveResult(ctx context.Context, id string, state State, res WriteResult, lastErr string) error {
	if h == nil {
		return nil
	}
	now := time.Now()
	return h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&db.ImportSession{}).Where("id = ?", id).Updates(map[string]any{
			"state":       string(state),
			"created":     res.Created,
			"updated":     res.Updated,
			"failed":      res.Failed,
			"last_error":  lastErr,
			"finished_at": now,
		}).Error; err != nil {
			return err
		}
		if len(res.Failures) == 0 {
			return nil
		}
		rows := make([]db.WriteFailure, 0, len(res.Failures))
		for _, f := range res.Failures {
			rows = append(rows, db.WriteFailure{SessionID: id, RecordID: f.ID, Name: f.Name, Error: f.Error})
		}
		return tx.CreateInBatches(&rows, 500).Error
	})
}

// Recent - ostatnie sesje, najnowsze pierwsze
func (h *History) Recent(ctx context.Context, limit int) ([]db.ImportSession, error) {
	if h == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}
	var out []db.ImportSession
	err := h.db.WithContext(ctx).Order("started_at desc").Limit(limit).Find(&out).Error
	return out, err
}

func (h *History) Failures(ctx context.Context, sessionID string) ([]db.WriteFailure, error) {
	if h == nil {
		return nil, nil
	}
	var out []db.WriteFailure
	err := h.db.WithContext(ctx).Where("session_id = ?", sessionID).Order("id").Find(&out).Error
	return out, err
}

func (h *History) Duplicates(ctx context.Context, sessionID string) ([]db.DuplicateIssue, error) {
	if h == nil {
		return nil, nil
	}
	var out []db.DuplicateIssue
	err := h.db.WithContext(ctx).Where("session_id = ?", sessionID).Order("scope, identifier").Find(&out).Error
	return out, err
}
