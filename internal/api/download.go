package api

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/quantumlink/quantumlink/internal/config"
	"github.com/quantumlink/quantumlink/internal/enrich"
	"github.com/quantumlink/quantumlink/internal/jobs"
	"github.com/quantumlink/quantumlink/internal/storage"
)

const (
	encodingZstd = "zstd"
	encodingGzip = "gzip"
)

var errResultGone = errors.New("result file no longer exists")

// handleDownload streams the result of a succeeded job, compressed when the
// client accepts zstd or gzip. With ?presign=true it returns a presigned
// object-store URL instead.
func handleDownload(deps Dependencies, _ config.Config, w http.ResponseWriter, r *http.Request) {
	job, ok := lookupJob(deps, w, r)
	if !ok {
		return
	}
	id := job.ID
	if job.Status != jobs.StatusSucceeded {
		writeError(r.Context(), w, http.StatusConflict, "JOB_NOT_SUCCEEDED", "job has no downloadable result", false, map[string]any{"job_id": id, "status": job.Status})
		return
	}

	if presign, _ := strconv.ParseBool(r.URL.Query().Get("presign")); presign {
		url, err := deps.Enricher.DownloadURL(r.Context(), job)
		if err != nil {
			writeDomainError(w, r, err, map[string]any{"job_id": id})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"job_id": id, "url": url})
		return
	}

	body, size, err := openResult(deps, r, job)
	if err != nil {
		if errors.Is(err, errResultGone) {
			writeError(r.Context(), w, http.StatusGone, "RESULT_GONE", err.Error(), false, map[string]any{"job_id": id})
			return
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "RESULT_UNREADABLE", "failed to open result", true, map[string]any{"job_id": id, "details": err.Error()})
		return
	}
	defer func() { _ = body.Close() }()

	name := filepath.Base(job.OutputPath)
	header := w.Header()
	header.Set("Content-Type", storage.ContentTypeFor(name))
	header.Set("Content-Disposition", storage.AttachmentDisposition(name))
	header.Add("Vary", "Accept-Encoding")

	encoding := negotiateEncoding(r.Header.Get("Accept-Encoding"))
	if encoding == "" {
		if size >= 0 {
			header.Set("Content-Length", strconv.FormatInt(size, 10))
		}
		w.WriteHeader(http.StatusOK)
		_, _ = io.Copy(w, body)
		return
	}

	header.Set("Content-Encoding", encoding)
	w.WriteHeader(http.StatusOK)
	encoder, err := newEncoder(encoding, w)
	if err != nil {
		if deps.Logger != nil {
			deps.Logger.ErrorContext(r.Context(), "download_encoder_failed", slog.String("job_id", id), slog.Any("error", err))
		}
		return
	}
	if _, err := io.Copy(encoder, body); err != nil {
		if deps.Logger != nil {
			deps.Logger.WarnContext(r.Context(), "download_interrupted", slog.String("job_id", id), slog.Any("error", err))
		}
	}
	_ = encoder.Close()
}

// openResult opens the local result file, or the published copy once the
// local file is gone. A negative size means the length is unknown.
func openResult(deps Dependencies, r *http.Request, job jobs.Job) (io.ReadCloser, int64, error) {
	file, err := os.Open(job.OutputPath)
	if err == nil {
		size := int64(-1)
		if stat, statErr := file.Stat(); statErr == nil {
			size = stat.Size()
		}
		return file, size, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, 0, err
	}

	body, info, err := deps.Enricher.OpenPublished(r.Context(), job)
	if err != nil {
		if errors.Is(err, enrich.ErrNotPublished) || errors.Is(err, storage.ErrObjectNotFound) {
			return nil, 0, errResultGone
		}
		return nil, 0, err
	}
	if deps.Logger != nil {
		deps.Logger.InfoContext(r.Context(), "download_from_object_store",
			slog.String("job_id", job.ID),
			slog.String("object_key", job.ObjectKey),
		)
	}
	return body, info.Size, nil
}

func newEncoder(encoding string, w io.Writer) (io.WriteCloser, error) {
	switch encoding {
	case encodingZstd:
		return zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	case encodingGzip:
		return gzip.NewWriterLevel(w, gzip.DefaultCompression)
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", encoding)
	}
}

// negotiateEncoding picks zstd over gzip from an Accept-Encoding header.
// Codings listed with q=0 are refused.
func negotiateEncoding(header string) string {
	accepted := map[string]bool{}
	for _, entry := range strings.Split(header, ",") {
		name, params, _ := strings.Cut(strings.TrimSpace(entry), ";")
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		refused := false
		for _, param := range strings.Split(params, ";") {
			key, value, ok := strings.Cut(strings.TrimSpace(param), "=")
			if ok && strings.EqualFold(key, "q") {
				if q, err := strconv.ParseFloat(value, 64); err == nil && q == 0 {
					refused = true
				}
			}
		}
		accepted[name] = !refused
	}
	switch {
	case accepted[encodingZstd]:
		return encodingZstd
	case accepted[encodingGzip]:
		return encodingGzip
	default:
		return ""
	}
}
