package importer

import (
	"context"
	"errors"
	"strings"

	"github.com/bartek5186/barsync/internal/backend"
	"github.com/rs/zerolog"
)

// Extraction - ścieżka dokumentów/tekstu: upload -> ekstrakcja -> kandydaci.
type Extraction struct {
	log       zerolog.Logger
	uploader  backend.Uploader
	extractor backend.Extractor
	policy    backend.RetryPolicy
}

func NewExtraction(log zerolog.Logger, up backend.Uploader, ex backend.Extractor, policy backend.RetryPolicy) *Extraction {
	return &Extraction{log: log, uploader: up, extractor: ex, policy: policy}
}

// JSONSchema deklaruje kształt odpowiedzi: {<extract_key>: [ {pola...} ]}.
func JSONSchema(s Schema) map[string]any {
	props := make(map[string]any, len(s.Columns))
	for _, c := range s.Columns {
		props[c.Key] = map[string]any{"type": c.Type.String()}
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			s.ExtractKey: map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":       "object",
					"properties": props,
					"required":   []string{NameField},
				},
			},
		},
	}
}

func (x *Extraction) Run(ctx context.Context, name string, data []byte, n Normalizer) ([]Candidate, error) {
	if x == nil || x.uploader == nil || x.extractor == nil {
		return nil, &ExtractionError{Stage: "extract", Err: backend.ErrUnsupported, Details: "no extraction service configured"}
	}
	if len(data) == 0 {
		return nil, &InputError{Source: name, Err: ErrEmptyInput}
	}

	var ref backend.FileRef
	err := x.policy.Do(ctx, func() error {
		var err error
		ref, err = x.uploader.Upload(ctx, name, data)
		return err
	})
	if err != nil {
		return nil, &ExtractionError{Stage: "upload", Err: err}
	}
	x.log.Debug().Str("file", name).Str("url", ref.URL).Msg("uploaded for extraction")

	var out backend.Extraction
	err = x.policy.Do(ctx, func() error {
		var err error
		out, err = x.extractor.Extract(ctx, ref, JSONSchema(n.Schema))
		return err
	})
	if err != nil {
		return nil, &ExtractionError{Stage: "extract", Err: err}
	}
	if st := strings.ToLower(out.Status); st != "" && st != "success" && st != "ok" {
		return nil, &ExtractionError{Stage: "extract", Details: firstNonEmpty(out.Details, "status "+out.Status)}
	}

	// usługa może oddać sam tekst - wtedy próbujemy go jako tabelę
	if len(out.Output) == 0 || string(out.Output) == "null" {
		if strings.TrimSpace(out.Text) != "" && LooksTabular(out.Text, n.Schema) {
			cands, _, err := ParseDelimited(strings.NewReader(out.Text), "", n)
			if err != nil {
				return nil, &ExtractionError{Stage: "decode", Err: err}
			}
			if len(cands) == 0 {
				return nil, &ExtractionError{Stage: "decode", Err: errors.New("extraction returned no usable items")}
			}
			return cands, nil
		}
		return nil, &ExtractionError{Stage: "decode", Details: "empty extraction output"}
	}

	cands, err := ParseExtraction(out.Output, n)
	if err != nil {
		return nil, &ExtractionError{Stage: "decode", Err: err}
	}
	x.log.Info().Str("file", name).Int("items", len(cands)).Msg("extraction done")
	return cands, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
