package query

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyPath         = errors.New("path is empty")
	ErrSourceNotFound    = errors.New("source file not found")
	ErrNoMatchPairs      = errors.New("reference has no match pairs")
	ErrEmptyColumn       = errors.New("column name is empty")
	ErrDuplicateColumn   = errors.New("column is pulled more than once")
	ErrUnsupportedOutput = errors.New("unsupported output format")
	ErrSessionClosed     = errors.New("engine session is not ready")
)

type Kind string

const (
	KindResolution Kind = "resolution"
	KindSchema     Kind = "schema"
	KindExecution  Kind = "execution"
	KindLifecycle  Kind = "lifecycle"
	KindPlan       Kind = "plan"
)

// Error carries the engine's diagnostic unchanged in Err.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s %q: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf classifies err. Sentinels map to their natural kind; anything else
// not wrapped in *Error is reported as execution.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var queryErr *Error
	if errors.As(err, &queryErr) {
		return queryErr.Kind
	}
	switch {
	case errors.Is(err, ErrEmptyPath), errors.Is(err, ErrSourceNotFound):
		return KindResolution
	case errors.Is(err, ErrNoMatchPairs), errors.Is(err, ErrEmptyColumn), errors.Is(err, ErrDuplicateColumn), errors.Is(err, ErrUnsupportedOutput):
		return KindPlan
	case errors.Is(err, ErrSessionClosed):
		return KindLifecycle
	default:
		return KindExecution
	}
}

// ColumnsOrEmpty folds any introspection failure into an empty column list
// for callers that only need "usable or not yet".
func ColumnsOrEmpty(columns []string, err error) []string {
	if err != nil || columns == nil {
		return []string{}
	}
	return columns
}
