package importer

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bartek5186/barsync/internal/events"
	"github.com/rs/zerolog"
)

type State string

const (
	StateIdle            State = "idle"
	StateParsing         State = "parsing"
	StatePreviewing      State = "previewing"
	StateConfirmed       State = "confirmed"
	StateWriting         State = "writing"
	StateDone            State = "done"
	StatePartiallyFailed State = "partially_failed"
)

// dozwolone przejścia; powrót do Idle = reset (nie w trakcie zapisu)
var transitions = map[State][]State{
	StateIdle:            {StateParsing},
	StateParsing:         {StatePreviewing, StateIdle},
	StatePreviewing:      {StateConfirmed, StateIdle},
	StateConfirmed:       {StateWriting, StateIdle},
	StateWriting:         {StateDone, StatePartiallyFailed},
	StateDone:            {StateIdle},
	StatePartiallyFailed: {StateIdle},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Settings - ustawienia importu przekazywane jawnie do sesji
type Settings struct {
	UpdateBatchSize    int
	TitleCaseThreshold float64
	DefaultUnit        string
}

// Env - jawny kontekst sesji (kto importuje i z jakimi ustawieniami)
type Env struct {
	Operator string
	Settings Settings
}

// Input - źródło importu: plik (Name+Data) albo wklejony tekst.
type Input struct {
	Name         string
	Data         []byte
	Text         string
	Charset      string
	ForceExtract bool
}

func (in Input) source() string {
	switch {
	case in.Name != "":
		return filepath.Base(in.Name)
	case in.Text != "":
		return "text"
	}
	return ""
}

func (in Input) payload() []byte {
	if len(in.Data) > 0 {
		return in.Data
	}
	return []byte(in.Text)
}

// Session prowadzi jeden import przez kolejne stany.
type Session struct {
	ID     string
	Kind   Kind
	env    Env
	schema Schema
	svc    *Service
	log    zerolog.Logger

	mu        sync.Mutex
	state     State
	trail     []State
	source    string
	sha       string
	report    ParseReport
	results   []RowResult
	summary   *Summary
	plan      *Plan
	result    *WriteResult
	lastErr   string
	createdAt time.Time
	updatedAt time.Time
}

// View - niezmienny obraz sesji (API, CLI, historia)
type View struct {
	ID        string       `json:"id"`
	Kind      Kind         `json:"kind"`
	Operator  string       `json:"operator,omitempty"`
	State     State        `json:"state"`
	Trail     []State      `json:"trail"`
	Source    string       `json:"source,omitempty"`
	SHA256    string       `json:"sha256,omitempty"`
	Report    ParseReport  `json:"report"`
	Summary   *Summary     `json:"summary,omitempty"`
	Rows      []RowResult  `json:"rows,omitempty"`
	Plan      *Plan        `json:"plan,omitempty"`
	Result    *WriteResult `json:"result,omitempty"`
	Error     string       `json:"error,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return View{
		ID:        s.ID,
		Kind:      s.Kind,
		Operator:  s.env.Operator,
		State:     s.state,
		Trail:     append([]State(nil), s.trail...),
		Source:    s.source,
		SHA256:    s.sha,
		Report:    s.report,
		Summary:   s.summary,
		Rows:      s.results,
		Plan:      s.plan,
		Result:    s.result,
		Error:     s.lastErr,
		CreatedAt: s.createdAt,
		UpdatedAt: s.updatedAt,
	}
}

// setLocked - wymaga s.mu
func (s *Session) setLocked(to State) error {
	if !canTransition(s.state, to) {
		return &TransitionError{From: s.state, To: to}
	}
	s.state = to
	s.trail = append(s.trail, to)
	s.updatedAt = time.Now()
	return nil
}

// resetLocked czyści wyniki i wraca do Idle
func (s *Session) resetLocked() {
	if s.state != StateIdle {
		s.state = StateIdle
		s.trail = append(s.trail, StateIdle)
	}
	s.source, s.sha = "", ""
	s.report = ParseReport{}
	s.results, s.summary, s.plan, s.result = nil, nil, nil, nil
	s.lastErr = ""
	s.updatedAt = time.Now()
}

// Reset - powrót do Idle z dowolnego stanu poza zapisem.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateWriting || s.state == StateParsing {
		return &TransitionError{From: s.state, To: StateIdle}
	}
	s.resetLocked()
	return nil
}

func (s *Session) normalizer() Normalizer {
	return Normalizer{Schema: s.schema, TitleCaseThreshold: s.env.Settings.TitleCaseThreshold}
}

// Preview: Idle -> Parsing -> Previewing. Ponowne parsowanie resetuje sesję.
func (s *Session) Preview(ctx context.Context, in Input) (*Summary, error) {
	s.mu.Lock()
	if s.state == StateWriting || s.state == StateParsing {
		st := s.state
		s.mu.Unlock()
		return nil, &TransitionError{From: st, To: StateParsing}
	}
	s.resetLocked()
	_ = s.setLocked(StateParsing)
	s.source = in.source()
	sum := sha256.Sum256(in.payload())
	s.sha = hex.EncodeToString(sum[:])
	s.mu.Unlock()

	fail := func(err error) (*Summary, error) {
		s.mu.Lock()
		_ = s.setLocked(StateIdle)
		s.lastErr = err.Error()
		s.mu.Unlock()
		s.log.Warn().Err(err).Str("source", in.source()).Msg("preview failed")
		return nil, err
	}

	cands, rep, err := s.parse(ctx, in)
	if err != nil {
		return fail(err)
	}
	existing, err := s.svc.reader.Load(ctx, s.schema)
	if err != nil {
		return fail(err)
	}

	results := Reconcile(cands, existing, s.schema)
	summary := Summarize(results, existing, s.schema)
	if at, err := s.svc.history.LastImported(ctx, s.sha); err != nil {
		s.log.Warn().Err(err).Msg("history lookup failed")
	} else {
		summary.PreviouslyImportedAt = at
	}

	s.mu.Lock()
	s.report = rep
	s.results = results
	s.summary = &summary
	if err := s.setLocked(StatePreviewing); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.mu.Unlock()

	if err := s.svc.history.SavePreview(ctx, s); err != nil {
		s.log.Error().Err(err).Msg("history: save preview failed")
	}
	s.log.Info().
		Str("source", s.source).
		Int("total", summary.Total).
		Int("new", summary.New).
		Int("updated", summary.Updated).
		Int("unchanged", summary.Unchanged).
		Int("duplicate_ids", len(summary.DuplicateIDs)).
		Msg("preview ready")
	return &summary, nil
}

func (s *Session) parse(ctx context.Context, in Input) ([]Candidate, ParseReport, error) {
	n := s.normalizer()
	src := in.source()
	if src == "" {
		return nil, ParseReport{}, &InputError{Err: ErrEmptyInput}
	}

	wrap := func(c []Candidate, r ParseReport, err error) ([]Candidate, ParseReport, error) {
		if err != nil {
			var ie *InputError
			var ee *ExtractionError
			if !errors.As(err, &ie) && !errors.As(err, &ee) {
				err = &InputError{Source: src, Err: err}
			}
		}
		return c, r, err
	}

	if in.ForceExtract {
		c, err := s.svc.extraction.Run(ctx, extractName(in), in.payload(), n)
		return wrap(c, ParseReport{Rows: len(c)}, err)
	}

	switch ext := strings.ToLower(filepath.Ext(in.Name)); {
	case ext == ".xlsx" || ext == ".xlsm":
		return wrap(ParseXLSX(bytes.NewReader(in.Data), n))
	case ext == ".csv" || ext == ".tsv" || (ext == ".txt" && LooksTabular(string(in.Data), s.schema)):
		return wrap(ParseDelimited(bytes.NewReader(in.Data), in.Charset, n))
	case in.Name == "" && LooksTabular(in.Text, s.schema):
		return wrap(ParseDelimited(strings.NewReader(in.Text), in.Charset, n))
	case in.Name == "" && strings.TrimSpace(in.Text) == "":
		return nil, ParseReport{}, &InputError{Source: src, Err: ErrEmptyInput}
	}

	// dokumenty, obrazy i tekst bez nagłówka idą przez ekstrakcję
	c, err := s.svc.extraction.Run(ctx, extractName(in), in.payload(), n)
	return wrap(c, ParseReport{Rows: len(c)}, err)
}

func extractName(in Input) string {
	if in.Name != "" {
		return filepath.Base(in.Name)
	}
	return "pasted.txt"
}

// Confirm: Previewing -> Confirmed; buduje plan z pominięciem skipRows.
func (s *Session) Confirm(skipRows []int) (*Plan, error) {
	s.mu.Lock()
	if err := s.setLocked(StateConfirmed); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	p := BuildPlan(s.results, s.schema, skipRows)
	s.plan = &p
	id := s.ID
	s.mu.Unlock()

	if err := s.svc.history.SaveState(context.Background(), id, StateConfirmed, ""); err != nil {
		s.log.Error().Err(err).Msg("history: save state failed")
	}
	s.log.Info().Int("creates", len(p.Creates)).Int("updates", len(p.Updates)).Ints("skipped", p.Skipped).Msg("import confirmed")
	return &p, nil
}

// Write: Confirmed -> Writing -> Done | PartiallyFailed.
func (s *Session) Write(ctx context.Context) (*WriteResult, error) {
	s.mu.Lock()
	if err := s.setLocked(StateWriting); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	plan := *s.plan
	batch := s.env.Settings.UpdateBatchSize
	s.mu.Unlock()

	w := NewWriter(s.log, s.svc.client, s.svc.retry, batch)
	res, werr := w.Write(ctx, plan)
	s.svc.reader.Invalidate(context.WithoutCancel(ctx), s.schema)

	final := StateDone
	lastErr := ""
	if werr != nil || res.Partial() {
		final = StatePartiallyFailed
	}
	if werr != nil {
		lastErr = werr.Error()
	} else if res.Partial() {
		lastErr = fmt.Sprintf("%d of %d updates failed", res.Failed, len(plan.Updates))
	}

	s.mu.Lock()
	_ = s.setLocked(final)
	s.result = &res
	s.lastErr = lastErr
	s.mu.Unlock()

	hctx := context.WithoutCancel(ctx)
	if err := s.svc.history.SaveResult(hctx, s.ID, final, res, lastErr); err != nil {
		s.log.Error().Err(err).Msg("history: save result failed")
	}
	if err := s.svc.publisher.PublishImportCompleted(hctx, events.ImportCompleted{
		SessionID: s.ID,
		Kind:      string(s.Kind),
		Operator:  s.env.Operator,
		State:     string(final),
		Created:   res.Created,
		Updated:   res.Updated,
		Failed:    res.Failed,
		Error:     lastErr,
	}); err != nil {
		s.log.Warn().Err(err).Msg("publish import.completed failed")
	}

	s.log.Info().
		Str("state", string(final)).
		Int("created", res.Created).
		Int("updated", res.Updated).
		Int("failed", res.Failed).
		Msg("import written")
	return &res, werr
}
