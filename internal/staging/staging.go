// Package staging owns the upload and result directories used by the API.
package staging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/quantumlink/quantumlink/internal/output"
	"github.com/quantumlink/quantumlink/internal/query"
)

var (
	ErrInvalidName = errors.New("invalid file name")
	ErrTooLarge    = errors.New("upload exceeds size limit")
	ErrNotFound    = errors.New("staged file not found")
)

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

type Area struct {
	uploadDir string
	resultDir string
}

// New resolves both directories to absolute paths and creates them.
func New(uploadDir, resultDir string) (*Area, error) {
	area := &Area{}
	for _, dir := range []struct {
		target *string
		raw    string
		name   string
	}{
		{target: &area.uploadDir, raw: uploadDir, name: "upload"},
		{target: &area.resultDir, raw: resultDir, name: "result"},
	} {
		if strings.TrimSpace(dir.raw) == "" {
			return nil, fmt.Errorf("%s dir is required", dir.name)
		}
		abs, err := filepath.Abs(dir.raw)
		if err != nil {
			return nil, fmt.Errorf("resolve %s dir: %w", dir.name, err)
		}
		if err := os.MkdirAll(abs, 0o755); err != nil {
			return nil, fmt.Errorf("create %s dir: %w", dir.name, err)
		}
		*dir.target = abs
	}
	return area, nil
}

func (a *Area) UploadDir() string { return a.uploadDir }

func (a *Area) ResultDir() string { return a.resultDir }

// SanitizeName strips any directory part and replaces characters outside
// [A-Za-z0-9._-] with underscores.
func SanitizeName(name string) (string, error) {
	base := filepath.Base(strings.ReplaceAll(strings.TrimSpace(name), `\`, "/"))
	cleaned := strings.Trim(unsafeNameChars.ReplaceAllString(base, "_"), "_")
	if cleaned == "" || cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return cleaned, nil
}

// SaveUpload writes r to the upload directory under the sanitized name. The
// file appears atomically; a body larger than maxBytes is rejected and
// nothing is kept. maxBytes <= 0 means no limit.
func (a *Area) SaveUpload(name string, r io.Reader, maxBytes int64) (output.Info, error) {
	cleaned, err := SanitizeName(name)
	if err != nil {
		return output.Info{}, err
	}

	tmp, err := os.CreateTemp(a.uploadDir, ".upload-*")
	if err != nil {
		return output.Info{}, fmt.Errorf("create upload temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpPath)
		}
	}()

	source := r
	if maxBytes > 0 {
		source = io.LimitReader(r, maxBytes+1)
	}
	written, err := io.Copy(tmp, source)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return output.Info{}, fmt.Errorf("write upload %q: %w", cleaned, err)
	}
	if maxBytes > 0 && written > maxBytes {
		return output.Info{}, fmt.Errorf("%w: %d bytes", ErrTooLarge, maxBytes)
	}

	target := filepath.Join(a.uploadDir, cleaned)
	if err := os.Rename(tmpPath, target); err != nil {
		return output.Info{}, fmt.Errorf("commit upload %q: %w", cleaned, err)
	}
	committed = true
	return output.Stat(target)
}

// Uploads lists staged uploads sorted by name.
func (a *Area) Uploads() ([]output.Info, error) {
	entries, err := os.ReadDir(a.uploadDir)
	if err != nil {
		return nil, fmt.Errorf("list uploads: %w", err)
	}
	infos := make([]output.Info, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		infos = append(infos, output.FileInfo(filepath.Join(a.uploadDir, entry.Name())))
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

// UploadPath maps an upload name to its absolute path. The file must exist.
func (a *Area) UploadPath(name string) (string, error) {
	cleaned, err := SanitizeName(name)
	if err != nil {
		return "", err
	}
	path := filepath.Join(a.uploadDir, cleaned)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %q", ErrNotFound, cleaned)
		}
		return "", err
	}
	return path, nil
}

// ResolvePath accepts either a bare upload name or an absolute path inside
// the upload or result directory.
func (a *Area) ResolvePath(raw string) (string, error) {
	if !filepath.IsAbs(raw) {
		return a.UploadPath(raw)
	}
	cleaned := filepath.Clean(raw)
	if !a.contains(a.uploadDir, cleaned) && !a.contains(a.resultDir, cleaned) {
		return "", fmt.Errorf("%w: %q is outside the staging area", ErrInvalidName, raw)
	}
	return cleaned, nil
}

// ResultPath returns where a result with this name and format is written.
// The extension is forced to match the format.
func (a *Area) ResultPath(name string, format query.OutputFormat) (string, error) {
	cleaned, err := SanitizeName(name)
	if err != nil {
		return "", err
	}
	ext := "." + string(format)
	cleaned = strings.TrimSuffix(cleaned, filepath.Ext(cleaned)) + ext
	return filepath.Join(a.resultDir, cleaned), nil
}

func (a *Area) contains(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
