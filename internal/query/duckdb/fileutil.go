package duckdb

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/quantumlink/quantumlink/internal/query"
)

// resetDir leaves an empty directory at path, discarding whatever a previous
// process spilled there.
func resetDir(path string) error {
	if err := os.RemoveAll(path); err != nil {
		return err
	}
	return os.MkdirAll(path, 0o755)
}

func ensureParentDir(path string) error {
	parent := filepath.Dir(path)
	if parent == "" || parent == "." {
		return nil
	}
	return os.MkdirAll(parent, 0o755)
}

// removePartial drops an output a failed COPY may have left behind.
func removePartial(path string) {
	_ = os.Remove(path)
}

// checkSource reports ErrEmptyPath or ErrSourceNotFound before the engine is
// asked to bind a scan, so a missing file is not mistaken for a broken one.
func checkSource(op, path string) error {
	if strings.TrimSpace(path) == "" {
		return &query.Error{Kind: query.KindResolution, Op: op, Err: query.ErrEmptyPath}
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &query.Error{Kind: query.KindResolution, Op: op, Path: path, Err: query.ErrSourceNotFound}
		}
		return &query.Error{Kind: query.KindResolution, Op: op, Path: path, Err: err}
	}
	if info.IsDir() {
		return &query.Error{Kind: query.KindResolution, Op: op, Path: path, Err: fmt.Errorf("%w: is a directory", query.ErrSourceNotFound)}
	}
	return nil
}
