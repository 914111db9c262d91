// internal/backend/types.go
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

var ErrUnsupported = errors.New("backend: operation not supported")

// Record - pojedynczy rekord encji. Na drucie płaski obiekt JSON z polem "id".
type Record struct {
	ID   string
	Data map[string]any
}

func (r Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Data)+1)
	for k, v := range r.Data {
		out[k] = v
	}
	out["id"] = r.ID
	return json.Marshal(out)
}

func (r *Record) UnmarshalJSON(b []byte) error {
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	switch id := m["id"].(type) {
	case string:
		r.ID = id
	case float64:
		r.ID = strconv.FormatFloat(id, 'f', -1, 64)
	case nil:
		r.ID = ""
	default:
		r.ID = fmt.Sprint(id)
	}
	delete(m, "id")
	r.Data = m
	return nil
}

// Query - filtr równościowy pole -> wartość
type Query map[string]any

type UpdateOp struct {
	ID   string         `json:"id"`
	Data map[string]any `json:"data"`
}

// Client - minimalny kontrakt backendu (list/filter, create, bulk create, update).
type Client interface {
	Name() string
	List(ctx context.Context, entity string, filter Query) ([]Record, error)
	Create(ctx context.Context, entity string, data map[string]any) (Record, error)
	BulkCreate(ctx context.Context, entity string, items []map[string]any) ([]Record, error)
	Update(ctx context.Context, entity, id string, changes map[string]any) (Record, error)
}

// BulkUpdater - opcjonalna zdolność backendu; sprawdzana raz, przez asercję typu.
type BulkUpdater interface {
	BulkUpdate(ctx context.Context, entity string, ops []UpdateOp) error
}

type FileRef struct {
	ID   string `json:"id,omitempty"`
	URL  string `json:"file_url"`
	Name string `json:"name,omitempty"`
}

type Uploader interface {
	Upload(ctx context.Context, name string, data []byte) (FileRef, error)
}

// Extraction - odpowiedź usługi ekstrakcji: tekst albo ustrukturyzowany JSON.
type Extraction struct {
	Status  string          `json:"status"`
	Output  json.RawMessage `json:"output,omitempty"`
	Text    string          `json:"text,omitempty"`
	Details string          `json:"details,omitempty"`
}

type Extractor interface {
	Extract(ctx context.Context, ref FileRef, schema map[string]any) (Extraction, error)
}

// StatusError - odpowiedź HTTP spoza 2xx
type StatusError struct {
	Code   int
	Method string
	Path   string
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: http %d", e.Method, e.Path, e.Code)
	}
	return fmt.Sprintf("%s %s: http %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// Deps - zależności wstrzykiwane do fabryk backendów
type Deps struct {
	DB      *gorm.DB
	HTTP    *http.Client
	APIKey  string
	DataDir string
}

type Factory func(log zerolog.Logger, raw json.RawMessage, deps Deps) (Client, error)
