package api

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/quantumlink/quantumlink/internal/config"
)

const (
	uploadFormField = "file"
	// multipartSlack covers the part headers around the file body.
	multipartSlack = 1 << 20
)

func handleUpload(deps Dependencies, cfg config.Config, w http.ResponseWriter, r *http.Request) {
	maxBytes := cfg.HTTP.MaxUploadBytes
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartSlack)
	}
	reader, err := r.MultipartReader()
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_MULTIPART", "expected a multipart/form-data body", false, map[string]any{"details": err.Error()})
		return
	}

	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeError(r.Context(), w, http.StatusRequestEntityTooLarge, "UPLOAD_TOO_LARGE", err.Error(), false, nil)
				return
			}
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_MULTIPART", "failed to read multipart body", false, map[string]any{"details": err.Error()})
			return
		}
		if part.FormName() != uploadFormField || strings.TrimSpace(part.FileName()) == "" {
			_ = part.Close()
			continue
		}

		upload, err := deps.Enricher.SaveUpload(r.Context(), part.FileName(), part, maxBytes)
		_ = part.Close()
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeError(r.Context(), w, http.StatusRequestEntityTooLarge, "UPLOAD_TOO_LARGE", err.Error(), false, nil)
				return
			}
			writeDomainError(w, r, err, map[string]any{"file_name": part.FileName()})
			return
		}
		writeJSON(w, http.StatusCreated, upload)
		return
	}

	writeError(r.Context(), w, http.StatusBadRequest, "FILE_REQUIRED", "multipart field \"file\" is required", false, nil)
}

func handleListUploads(deps Dependencies, _ config.Config, w http.ResponseWriter, r *http.Request) {
	uploads, err := deps.Enricher.Uploads(r.Context())
	if err != nil {
		writeDomainError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"uploads": uploads})
}
