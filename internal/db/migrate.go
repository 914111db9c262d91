package db

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Migrate tworzy/aktualizuje schemat bazy.
func (h *Handle) Migrate() error {
	if err := h.DB.AutoMigrate(
		&ImportSession{},
		&DuplicateIssue{},
		&WriteFailure{},
		&EntityRecord{},
		&KV{},
	); err != nil {
		return fmt.Errorf("AutoMigrate error: %w", err)
	}
	return nil
}

// GetKV zwraca wartość i czy klucz istnieje.
func (h *Handle) GetKV(k string) (string, bool, error) {
	var kv KV
	err := h.DB.Where("k = ?", k).Take(&kv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return kv.V, true, nil
}

func (h *Handle) SetKV(k, v string) error {
	return h.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "k"}},
		DoUpdates: clause.AssignmentColumns([]string{"v"}),
	}).Create(&KV{K: k, V: v}).Error
}
