// Package artifact is the Artifact Store Client of spec.md §4 (component
// A): object upload/download against an S3-compatible blob store, plus the
// bucket-ensure step a worker runs at boot. Grounded in the teacher's
// storage.FileStore interface shape (internal/storage/file_store.go),
// backed by the S3 client the rest of the example pack uses
// (sthanikan2000-nsw/backend/internal/uploads/drivers/s3_driver.go) instead
// of the teacher's own NATS Object Store backend, since spec.md §6
// specifies an S3-compatible contract.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
)

var (
	// ErrObjectNotFound is returned when a requested object does not exist.
	ErrObjectNotFound = errors.New("object not found")
	// ErrInvalidObjectName is returned for an empty or malformed object name.
	ErrInvalidObjectName = errors.New("invalid object name")
)

// ObjectError wraps a store operation failure with its object-name context,
// mirroring the teacher's FileError (internal/storage/errors.go).
type ObjectError struct {
	Op, ObjectName string
	Err            error
}

func (e *ObjectError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.ObjectName, e.Err)
}
func (e *ObjectError) Unwrap() error { return e.Err }

func newObjectError(op, name string, err error) *ObjectError {
	return &ObjectError{Op: op, ObjectName: name, Err: err}
}

// Store is the blob-store contract of spec.md §6: fget/fput by object name
// against a single bucket, plus a startup bucket-ensure step.
type Store interface {
	// EnsureBucket creates the configured bucket if it does not already
	// exist (spec.md §6 "bucket_exists/make_bucket during worker boot").
	EnsureBucket(ctx context.Context) error

	// FGetObject downloads objectName to filePath on the local filesystem.
	FGetObject(ctx context.Context, objectName, filePath string) error

	// FPutObject uploads the local file at filePath as objectName.
	FPutObject(ctx context.Context, objectName, filePath string) error

	// PutReader uploads the content of r as objectName without touching
	// the local filesystem, used for the Task Runner's in-memory log text.
	PutReader(ctx context.Context, objectName string, r io.Reader) error
}
