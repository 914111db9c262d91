package importer

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyInput        = errors.New("input is empty")
	ErrNoHeader          = errors.New("no recognizable header row")
	ErrInvalidTransition = errors.New("invalid session state transition")
	ErrSessionNotFound   = errors.New("import session not found")
)

// InputError - źródło nieczytelne albo bez rozpoznawalnego nagłówka.
type InputError struct {
	Source string
	Err    error
}

func (e *InputError) Error() string {
	if e.Source == "" {
		return "input: " + e.Err.Error()
	}
	return fmt.Sprintf("input %s: %v", e.Source, e.Err)
}

func (e *InputError) Unwrap() error { return e.Err }

// ExtractionError - upload/ekstrakcja nie zwróciły użytecznych danych.
type ExtractionError struct {
	Stage   string // upload | extract | decode
	Details string
	Err     error
}

func (e *ExtractionError) Error() string {
	msg := "extraction failed at " + e.Stage
	if e.Details != "" {
		msg += ": " + e.Details
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// TransitionError niesie stany, między którymi przejście jest niedozwolone.
type TransitionError struct {
	From, To State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%v: %s -> %s", ErrInvalidTransition, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }
