package blobstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aager/image-backfill/pkg/core"
)

// FSStore implements core.BlobStore on the local filesystem. It serves
// development runs and tests; production runs use MinioStore.
type FSStore struct {
	root string
}

// NewFSStore creates a filesystem blob store rooted at dir.
func NewFSStore(dir string) (*FSStore, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve blob root %s: %w", dir, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root %s: %w", abs, err)
	}
	return &FSStore{root: abs}, nil
}

// Put writes the payload under key via a temp file and rename, so a
// crash mid-write never leaves a truncated object behind. Re-writing the
// same key replaces the file.
func (s *FSStore) Put(ctx context.Context, key string, payload core.ImagePayload) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", core.Transient("upload_cancelled", err)
	}

	dest := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", core.Transient("upload_failed", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".upload-*")
	if err != nil {
		return "", core.Transient("upload_failed", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(payload.Data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", core.Transient("upload_failed", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", core.Transient("upload_failed", err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return "", core.Transient("upload_failed", err)
	}

	return "file://" + dest, nil
}
