// Package localfs implements the blob contract over an afero filesystem.
// With afero.NewOsFs it backs a directory-based object store; with
// afero.NewMemMapFs it is the standard test double for the object adapter.
package localfs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/punchlog/punch/internal/blob"
)

type localFS struct {
	fs   afero.Fs
	name string
}

// New creates a blob store over the given filesystem. A nil fs defaults to
// the OS filesystem rooted at root; with a non-nil fs, root becomes a
// base-path prefix inside it.
func New(fs afero.Fs, root string) blob.Store {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if root != "" {
		fs = afero.NewBasePathFs(fs, root)
	}
	return &localFS{fs: fs, name: "localfs://" + root}
}

func (l *localFS) String() string {
	return l.name
}

func (l *localFS) Has(_ context.Context, key string) (bool, error) {
	fi, err := l.fs.Stat(key)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat %s: %w", key, err)
	}
	return !fi.IsDir(), nil
}

func (l *localFS) Get(_ context.Context, key string) (io.ReadCloser, error) {
	f, err := l.fs.Open(key)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", key, blob.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to open %s: %w", key, err)
	}
	return f, nil
}

func (l *localFS) Put(_ context.Context, key string, r io.Reader) error {
	dir := filepath.Dir(key)
	if dir != "." {
		if err := l.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", key, err)
		}
	}

	f, err := l.fs.OpenFile(key, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", key, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", key, err)
	}
	return nil
}

func (l *localFS) Delete(_ context.Context, key string) error {
	if err := l.fs.Remove(key); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

func (l *localFS) Keys(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	err := afero.Walk(l.fs, ".", func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		key := filepath.ToSlash(path)
		key = strings.TrimPrefix(key, "./")
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}
