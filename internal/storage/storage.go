package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"time"
)

var ErrObjectNotFound = errors.New("object not found")

type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
}

// PutOptions describe a published object. Filename becomes the attachment
// name browsers save the download as; Metadata is stored alongside the object.
type PutOptions struct {
	ContentType string
	Filename    string
	Metadata    map[string]string
}

// ObjectStore is where materialized results are published. Downloads fall
// back to the stored copy once the local result file is gone.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, opts PutOptions) (ObjectInfo, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Stat(ctx context.Context, key string) (ObjectInfo, error)
}

// Presigner is implemented by stores that can hand out time-limited download
// URLs.
type Presigner interface {
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// AttachmentDisposition renders a Content-Disposition header value for a
// download saved as name.
func AttachmentDisposition(name string) string {
	if name == "" {
		return "attachment"
	}
	return mime.FormatMediaType("attachment", map[string]string{"filename": name})
}

// PublishFile uploads the local file at localPath under key. Missing content
// type and filename are derived from localPath.
func PublishFile(ctx context.Context, store ObjectStore, key, localPath string, opts PutOptions) (ObjectInfo, error) {
	if opts.Filename == "" {
		opts.Filename = filepath.Base(localPath)
	}
	if opts.ContentType == "" {
		opts.ContentType = ContentTypeFor(opts.Filename)
	}

	file, err := os.Open(localPath)
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("open result file: %w", err)
	}
	defer func() { _ = file.Close() }()

	stat, err := file.Stat()
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("stat result file: %w", err)
	}
	info, err := store.Put(ctx, key, file, stat.Size(), opts)
	if err != nil {
		return ObjectInfo{}, err
	}
	return info, nil
}
