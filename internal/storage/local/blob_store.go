// Package local stores downloaded media under a directory on disk, laid out
// exactly like the object keys the downloader produces.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Config locates the media root.
type Config struct {
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// BlobStore writes media files below BaseDir.
type BlobStore struct {
	root string
}

// ErrOutsideRoot is returned for keys that would escape the media root.
var ErrOutsideRoot = errors.New("media path escapes the media root")

// New prepares the media root, creating it when missing, and checks that
// files can be written there.
func New(cfg Config) (*BlobStore, error) {
	root := strings.TrimSpace(cfg.BaseDir)
	if root == "" {
		return nil, fmt.Errorf("media root is required")
	}
	root = filepath.Clean(root)
	if err := ensureWritableDir(root); err != nil {
		return nil, err
	}
	return &BlobStore{root: root}, nil
}

func ensureWritableDir(dir string) error {
	info, err := os.Stat(dir)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create media root: %w", err)
		}
	case err != nil:
		return fmt.Errorf("stat media root: %w", err)
	case !info.IsDir():
		return fmt.Errorf("media root %s is not a directory", dir)
	}
	tmp, err := os.CreateTemp(dir, ".writable-*")
	if err != nil {
		return fmt.Errorf("media root is not writable: %w", err)
	}
	_ = tmp.Close()
	return os.Remove(tmp.Name())
}

// Root returns the media root directory.
func (s *BlobStore) Root() string { return s.root }

func (s *BlobStore) resolve(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("media path is required")
	}
	full := filepath.Join(s.root, filepath.FromSlash(key))
	if !strings.HasPrefix(full, s.root+string(filepath.Separator)) {
		return "", fmt.Errorf("%q: %w", key, ErrOutsideRoot)
	}
	return full, nil
}

// PutObject writes data next to its final name and renames it into place,
// so readers never observe half-written media. It returns a file:// URI.
func (s *BlobStore) PutObject(_ context.Context, key string, _ string, data io.Reader) (string, error) {
	full, err := s.resolve(key)
	if err != nil {
		return "", err
	}
	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create media dir: %w", err)
	}
	part, err := os.CreateTemp(dir, filepath.Base(full)+".part-*")
	if err != nil {
		return "", fmt.Errorf("create partial file: %w", err)
	}
	_, copyErr := io.Copy(part, data)
	closeErr := part.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = os.Remove(part.Name())
		return "", fmt.Errorf("write %s: %w", key, err)
	}
	if err := os.Rename(part.Name(), full); err != nil {
		_ = os.Remove(part.Name())
		return "", fmt.Errorf("move %s into place: %w", key, err)
	}
	return "file://" + filepath.ToSlash(full), nil
}

// GetObject opens a stored media file.
func (s *BlobStore) GetObject(_ context.Context, key string) (io.ReadCloser, error) {
	full, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	// #nosec G304 -- confined to the media root by resolve.
	f, err := os.Open(full)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", key, err)
	}
	return f, nil
}

// Exists reports whether a non-empty regular file is stored at key. Empty
// files count as missing so the downloader fetches them again.
func (s *BlobStore) Exists(_ context.Context, key string) (bool, error) {
	full, err := s.resolve(key)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(full)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", key, err)
	}
	return info.Mode().IsRegular() && info.Size() > 0, nil
}
