package api

import (
	"net/http"
	"strings"

	"github.com/quantumlink/quantumlink/internal/config"
	"github.com/quantumlink/quantumlink/internal/query"
)

type previewRequest struct {
	Plan  query.ChainPlan `json:"plan"`
	Limit int             `json:"limit"`
}

type previewResponse struct {
	Columns    []string `json:"columns"`
	Rows       [][]any  `json:"rows"`
	RowCount   int      `json:"row_count"`
	DurationMS int64    `json:"duration_ms"`
}

type queryPlanResponse struct {
	SQL           string   `json:"sql"`
	OutputColumns []string `json:"output_columns"`
}

func handleColumns(deps Dependencies, _ config.Config, w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.URL.Query().Get("path"))
	if raw == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "PATH_REQUIRED", "query parameter path is required", false, nil)
		return
	}
	path, err := deps.Enricher.ResolvePath(raw)
	if err != nil {
		writeDomainError(w, r, err, map[string]any{"path": raw})
		return
	}
	columns, err := deps.Enricher.Columns(r.Context(), path)
	if err != nil {
		writeDomainError(w, r, err, map[string]any{"path": raw})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"path": path, "columns": columns})
}

func handleQueryPlan(deps Dependencies, _ config.Config, w http.ResponseWriter, r *http.Request) {
	var plan query.ChainPlan
	if err := decodeJSON(r, &plan); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid plan body", false, map[string]any{"details": err.Error()})
		return
	}
	resolved, err := deps.Enricher.ResolvePlan(plan)
	if err != nil {
		writeDomainError(w, r, err, nil)
		return
	}
	sqlText, err := deps.Enricher.Query(resolved)
	if err != nil {
		writeDomainError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, queryPlanResponse{SQL: sqlText, OutputColumns: resolved.OutputColumns()})
}

func handlePreview(deps Dependencies, _ config.Config, w http.ResponseWriter, r *http.Request) {
	var request previewRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid preview request body", false, map[string]any{"details": err.Error()})
		return
	}
	if request.Limit < 0 {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_LIMIT", "limit must not be negative", false, nil)
		return
	}
	resolved, err := deps.Enricher.ResolvePlan(request.Plan)
	if err != nil {
		writeDomainError(w, r, err, nil)
		return
	}
	result, err := deps.Enricher.Preview(r.Context(), resolved, request.Limit)
	if err != nil {
		writeDomainError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, previewResponse{
		Columns:    result.Columns,
		Rows:       result.Rows,
		RowCount:   len(result.Rows),
		DurationMS: result.Duration.Milliseconds(),
	})
}
