package sink

import (
	"context"
	"errors"
	"fmt"
)

type WriteRequest struct {
	Key         string
	Data        []byte
	ContentType string
}

// Outcome is what the object store reported for a successful write.
type Outcome struct {
	Bucket    string `json:"bucket"`
	Key       string `json:"key"`
	ETag      string `json:"etag,omitempty"`
	VersionID string `json:"versionId,omitempty"`
}

type Sinkr interface {
	Write(ctx context.Context, req WriteRequest) (Outcome, error)
}

// StorageError is returned for every failed write. Code holds the provider
// error code when one is available (e.g. NoSuchBucket, AccessDenied).
type StorageError struct {
	Bucket string
	Key    string
	Code   string
	Err    error
}

func (e *StorageError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("put object bucket=%q key=%q code=%s: %v", e.Bucket, e.Key, e.Code, e.Err)
	}
	return fmt.Sprintf("put object bucket=%q key=%q: %v", e.Bucket, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IsStorageError reports whether err wraps a *StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
