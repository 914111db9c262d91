// internal/db/models.go
package db

import "time"

// import_sessions - historia importów (jeden wiersz na sesję)
type ImportSession struct {
	ID             string `gorm:"primaryKey;size:36"`
	Kind           string `gorm:"index;size:32"` // ingredient | account
	Operator       string
	Source         string // nazwa pliku albo "text"
	SHA256         string `gorm:"index;size:64"`
	State          string `gorm:"index;size:32"`
	Total          int
	NewCount       int
	UpdatedCount   int
	UnchangedCount int
	Created        int
	Updated        int
	Failed         int
	LastError      string    `gorm:"type:text"`
	StartedAt      time.Time `gorm:"autoCreateTime"`
	FinishedAt     *time.Time
}

// duplicate_issues - zduplikowane identyfikatory wykryte przy podglądzie
type DuplicateIssue struct {
	ID         uint   `gorm:"primaryKey"`
	SessionID  string `gorm:"size:36;uniqueIndex:uniq_issue_key"`
	Scope      string `gorm:"size:16;uniqueIndex:uniq_issue_key"` // import | existing
	Identifier string `gorm:"size:191;uniqueIndex:uniq_issue_key"`
	Names      string `gorm:"type:text"` // JSON array
	Count      int
	UpdatedAt  time.Time
}

// write_failures - pojedyncze nieudane aktualizacje
type WriteFailure struct {
	ID        uint   `gorm:"primaryKey"`
	SessionID string `gorm:"size:36;index"`
	RecordID  string
	Name      string
	Error     string    `gorm:"type:text"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// entity_records - magazyn backendu "local"
type EntityRecord struct {
	ID        uint   `gorm:"primaryKey"`
	Entity    string `gorm:"index;size:64"`
	Data      string `gorm:"type:text"` // JSON
	CreatedAt time.Time
	UpdatedAt time.Time
}

type KV struct {
	K string `gorm:"primaryKey;size:191"`
	V string
}
