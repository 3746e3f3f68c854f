package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"
)

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// BuildResultPath lays results out by finish date and job:
// results/date=YYYY-MM-DD/<job id>/<file name>.
func BuildResultPath(jobID, fileName string, finishedAt time.Time) (string, error) {
	if err := validatePathComponent(jobID, "job id"); err != nil {
		return "", err
	}
	if err := validatePathComponent(fileName, "file name"); err != nil {
		return "", err
	}

	ts := finishedAt.UTC()
	return path.Join(
		"results",
		fmt.Sprintf("date=%04d-%02d-%02d", ts.Year(), ts.Month(), ts.Day()),
		jobID,
		fileName,
	), nil
}

// ContentTypeFor returns the MIME type used when publishing a result with the
// given extension.
func ContentTypeFor(fileName string) string {
	switch strings.ToLower(path.Ext(fileName)) {
	case ".csv":
		return "text/csv"
	case ".parquet":
		return "application/vnd.apache.parquet"
	default:
		return "application/octet-stream"
	}
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
