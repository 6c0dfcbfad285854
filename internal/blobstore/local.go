package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"audiocorpus/internal/fileutil"
	"audiocorpus/internal/services"
)

// LocalStore keeps blobs as files under root/<container>/<key>.
type LocalStore struct {
	root string
}

// NewLocalStore returns a store rooted at root, creating it if needed.
func NewLocalStore(root string) (*LocalStore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("%w: local blob root is required", services.ErrConfiguration)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &LocalStore{root: root}, nil
}

func (s *LocalStore) path(container, key string) (string, error) {
	if container == "" || strings.ContainsAny(container, `/\`) || container == ".." {
		return "", fmt.Errorf("%w: invalid container %q", services.ErrValidation, container)
	}
	clean := filepath.Clean("/" + key)
	if key == "" || clean == "/" {
		return "", fmt.Errorf("%w: invalid key %q", services.ErrValidation, key)
	}
	return filepath.Join(s.root, container, filepath.FromSlash(clean[1:])), nil
}

// Exists implements Store.
func (s *LocalStore) Exists(ctx context.Context, container, key string) (bool, error) {
	_, ok, err := s.Stat(ctx, container, key)
	return ok, err
}

// Stat implements Store.
func (s *LocalStore) Stat(_ context.Context, container, key string) (Object, bool, error) {
	path, err := s.path(container, key)
	if err != nil {
		return Object{}, false, err
	}
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Object{}, false, nil
	}
	if err != nil {
		return Object{}, false, err
	}
	if info.IsDir() {
		return Object{}, false, nil
	}
	return Object{Key: key, Size: info.Size(), Modified: info.ModTime().UTC()}, true, nil
}

// Put implements Store.
func (s *LocalStore) Put(ctx context.Context, container, key string, body io.Reader, _ int64) error {
	path, err := s.path(container, key)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return fileutil.WriteAtomic(path, func(f *os.File) error {
		_, err := io.Copy(f, body)
		return err
	})
}

// List implements Store.
func (s *LocalStore) List(ctx context.Context, container, prefix string) iter.Seq2[Object, error] {
	return func(yield func(Object, error) bool) {
		base := filepath.Join(s.root, container)
		var objects []Object
		err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) && path == base {
					return fs.SkipDir
				}
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
				return nil
			}
			rel, err := filepath.Rel(base, path)
			if err != nil {
				return err
			}
			key := filepath.ToSlash(rel)
			if !strings.HasPrefix(key, prefix) {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			objects = append(objects, Object{Key: key, Size: info.Size(), Modified: info.ModTime().UTC()})
			return nil
		})
		if err != nil {
			yield(Object{}, err)
			return
		}
		sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
		for _, obj := range objects {
			if !yield(obj, nil) {
				return
			}
		}
	}
}

// Delete implements Store. Deleting a missing key is not an error.
func (s *LocalStore) Delete(_ context.Context, container, key string) error {
	path, err := s.path(container, key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
