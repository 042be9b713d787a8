// Package store keeps downloaded archives in object storage.
//
// Any gocloud.dev bucket URL works (s3://, gs://, file://, mem://) as long as
// the matching driver is linked into the binary.
package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"
)

// ErrNotFound is returned when an object does not exist.
var ErrNotFound = errors.New("store: object not found")

// Store is a bucket plus the key prefix archives are stored under.
type Store struct {
	bucket *blob.Bucket
	prefix string
	owned  bool
}

// Open opens the bucket at bucketURL.
func Open(ctx context.Context, bucketURL, prefix string) (*Store, error) {
	bkt, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("store: open bucket: %w", err)
	}
	return &Store{bucket: bkt, prefix: prefix, owned: true}, nil
}

// New wraps an already opened bucket. Close does not close it.
func New(bucket *blob.Bucket, prefix string) *Store {
	return &Store{bucket: bucket, prefix: prefix}
}

// Key returns the object key for filename.
func (s *Store) Key(filename string) string {
	if s.prefix == "" {
		return filename
	}
	return path.Join(s.prefix, filename)
}

// Exists reports whether an object exists at key.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	ok, err := s.bucket.Exists(ctx, key)
	if err != nil {
		return false, fmt.Errorf("store: check %s: %w", key, err)
	}
	return ok, nil
}

// Size returns the size of the object at key.
func (s *Store) Size(ctx context.Context, key string) (int64, error) {
	attrs, err := s.bucket.Attributes(ctx, key)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return 0, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return 0, fmt.Errorf("store: attributes %s: %w", key, err)
	}
	return attrs.Size, nil
}

// UploadFile streams the local file at localPath to key and returns the
// number of bytes written.
func (s *Store) UploadFile(ctx context.Context, key, localPath string) (int64, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return 0, fmt.Errorf("store: open %s: %w", localPath, err)
	}
	defer f.Close()

	return s.Upload(ctx, key, f)
}

// Upload streams r to key. The object only becomes visible when the copy
// succeeds.
func (s *Store) Upload(ctx context.Context, key string, r io.Reader) (int64, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w, err := s.bucket.NewWriter(ctx, key, nil)
	if err != nil {
		return 0, fmt.Errorf("store: create writer %s: %w", key, err)
	}

	n, err := io.Copy(w, r)
	if err != nil {
		// Cancelling before Close aborts the write.
		cancel()
		w.Close()
		return 0, fmt.Errorf("store: write %s: %w", key, err)
	}

	if err := w.Close(); err != nil {
		return 0, fmt.Errorf("store: close %s: %w", key, err)
	}
	return n, nil
}

// Close closes the bucket if the Store opened it.
func (s *Store) Close() error {
	if s.owned {
		return s.bucket.Close()
	}
	return nil
}
