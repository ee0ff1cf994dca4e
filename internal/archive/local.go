package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Local writes archived pages under a root directory.
type Local struct {
	root     string
	maxBytes int64
}

// NewLocal returns an archive rooted at dir. maxBytes caps individual
// objects; zero means 16 MiB.
func NewLocal(root string, maxBytes int64) (*Local, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create archive dir %s: %w", root, err)
	}
	if maxBytes <= 0 {
		maxBytes = 16 << 20
	}
	return &Local{root: root, maxBytes: maxBytes}, nil
}

// PutObject writes data to root/path and returns the file path.
func (l *Local) PutObject(ctx context.Context, path, _ string, data []byte) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path is required")
	}
	if len(data) == 0 {
		return "", fmt.Errorf("empty object body")
	}
	if int64(len(data)) > l.maxBytes {
		return "", fmt.Errorf("object size %d exceeds max %d", len(data), l.maxBytes)
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("context canceled: %w", err)
	}
	target := filepath.Join(l.root, filepath.FromSlash(path))
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return "", fmt.Errorf("creating archive dir for %s: %w", target, err)
	}
	if err := os.WriteFile(target, data, 0o600); err != nil {
		return "", fmt.Errorf("writing archive object %s: %w", target, err)
	}
	return target, nil
}
