package api

import (
	"errors"
	"net/http"

	"github.com/quantumlink/quantumlink/internal/enrich"
	"github.com/quantumlink/quantumlink/internal/jobs"
	"github.com/quantumlink/quantumlink/internal/query"
	"github.com/quantumlink/quantumlink/internal/staging"
)

type errorMapping struct {
	status    int
	code      string
	retryable bool
}

var kindMappings = map[query.Kind]errorMapping{
	query.KindResolution: {status: http.StatusNotFound, code: "SOURCE_NOT_FOUND"},
	query.KindSchema:     {status: http.StatusUnprocessableEntity, code: "SCHEMA_UNREADABLE"},
	query.KindExecution:  {status: http.StatusUnprocessableEntity, code: "EXECUTION_FAILED"},
	query.KindPlan:       {status: http.StatusBadRequest, code: "INVALID_PLAN"},
	query.KindLifecycle:  {status: http.StatusServiceUnavailable, code: "ENGINE_UNAVAILABLE", retryable: true},
}

func mapError(err error) errorMapping {
	switch {
	case errors.Is(err, staging.ErrInvalidName):
		return errorMapping{status: http.StatusBadRequest, code: "INVALID_NAME"}
	case errors.Is(err, staging.ErrNotFound):
		return errorMapping{status: http.StatusNotFound, code: "FILE_NOT_FOUND"}
	case errors.Is(err, staging.ErrTooLarge):
		return errorMapping{status: http.StatusRequestEntityTooLarge, code: "UPLOAD_TOO_LARGE"}
	case errors.Is(err, jobs.ErrNotFound):
		return errorMapping{status: http.StatusNotFound, code: "JOB_NOT_FOUND"}
	case errors.Is(err, enrich.ErrNotReady):
		return errorMapping{status: http.StatusServiceUnavailable, code: "ENGINE_UNAVAILABLE", retryable: true}
	case errors.Is(err, enrich.ErrNotPublished), errors.Is(err, enrich.ErrNoPresigner):
		return errorMapping{status: http.StatusConflict, code: "NOT_PUBLISHED"}
	}
	if kind, ok := engineKind(err); ok {
		return kindMappings[kind]
	}
	return errorMapping{status: http.StatusInternalServerError, code: "INTERNAL", retryable: true}
}

// engineKind classifies errors raised by the query layer. Anything else is
// not an engine error and is reported as internal.
func engineKind(err error) (query.Kind, bool) {
	var queryErr *query.Error
	if errors.As(err, &queryErr) {
		return queryErr.Kind, true
	}
	for _, sentinel := range []error{
		query.ErrEmptyPath,
		query.ErrSourceNotFound,
		query.ErrNoMatchPairs,
		query.ErrEmptyColumn,
		query.ErrDuplicateColumn,
		query.ErrUnsupportedOutput,
		query.ErrSessionClosed,
	} {
		if errors.Is(err, sentinel) {
			return query.KindOf(err), true
		}
	}
	return "", false
}

func writeDomainError(w http.ResponseWriter, r *http.Request, err error, extra map[string]any) {
	mapping := mapError(err)
	writeError(r.Context(), w, mapping.status, mapping.code, err.Error(), mapping.retryable, extra)
}
