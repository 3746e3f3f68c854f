package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/quantumlink/quantumlink/internal/auth"
	"github.com/quantumlink/quantumlink/internal/config"
	"github.com/quantumlink/quantumlink/internal/enrich"
	"github.com/quantumlink/quantumlink/internal/jobs"
	"github.com/quantumlink/quantumlink/internal/query"
)

const maxListLimit = 500

type createJobRequest struct {
	Plan       query.ChainPlan `json:"plan"`
	OutputName string          `json:"output_name"`
	Format     string          `json:"format"`
}

func handleCreateJob(deps Dependencies, _ config.Config, w http.ResponseWriter, r *http.Request) {
	var request createJobRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid job request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.OutputName) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "OUTPUT_NAME_REQUIRED", "output_name is required", false, nil)
		return
	}

	job, err := deps.Enricher.Submit(r.Context(), enrich.SubmitRequest{
		Principal:  auth.PrincipalFromContext(r.Context(), ""),
		Plan:       request.Plan,
		OutputName: request.OutputName,
		Format:     request.Format,
	})
	if err != nil {
		var extra map[string]any
		if job.ID != "" {
			extra = map[string]any{"job_id": job.ID, "status": job.Status}
		}
		writeDomainError(w, r, err, extra)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

func handleListJobs(deps Dependencies, _ config.Config, w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > maxListLimit {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be between 1 and "+strconv.Itoa(maxListLimit), false, map[string]any{"limit": raw})
			return
		}
		limit = parsed
	}

	list, err := deps.Enricher.ListJobs(r.Context(), jobs.ListFilter{Principal: jobScope(r.Context()), Limit: limit})
	if err != nil {
		writeDomainError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": list})
}

func handleGetJob(deps Dependencies, _ config.Config, w http.ResponseWriter, r *http.Request) {
	job, ok := lookupJob(deps, w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// jobScope returns the principal whose jobs the caller may read, or "" for
// every job. Writers and unauthenticated deployments are unscoped.
func jobScope(ctx context.Context) string {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity.Can(auth.RoleWriter) {
		return ""
	}
	return identity.Principal
}

// lookupJob loads the {id} job and writes the error response when it is
// missing or belongs to another principal.
func lookupJob(deps Dependencies, w http.ResponseWriter, r *http.Request) (jobs.Job, bool) {
	id := r.PathValue("id")
	job, err := deps.Enricher.Job(r.Context(), id)
	if err == nil {
		if scope := jobScope(r.Context()); scope != "" && job.Principal != scope {
			err = jobs.ErrNotFound
		}
	}
	if err != nil {
		writeDomainError(w, r, err, map[string]any{"job_id": id})
		return jobs.Job{}, false
	}
	return job, true
}
