package objectstore

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/coral-mesh/profilestore/internal/xerrors"
)

// Local is a Store backed by a local directory. Keys map directly onto
// relative file paths under Root; intermediate directories are created on
// Put as needed.
type Local struct {
	Root string
}

// NewLocal creates a Local store rooted at dir. The directory is created if
// it does not already exist.
func NewLocal(dir string) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, xerrors.Wrap(xerrors.Internal, err, "create object store root %s", dir)
	}
	return &Local{Root: dir}, nil
}

func (l *Local) path(key string) string {
	return filepath.Join(l.Root, filepath.FromSlash(key))
}

// Get implements Store.
func (l *Local) Get(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(l.path(key)) // #nosec G304 - key comes from server-internal callers
	if err != nil {
		if os.IsNotExist(err) {
			return nil, xerrors.New(xerrors.NotFound, "object %q not found", key)
		}
		return nil, xerrors.Wrap(xerrors.Internal, err, "read object %q", key)
	}
	return data, nil
}

// Put implements Store.
func (l *Local) Put(_ context.Context, key string, value []byte) error {
	p := l.path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return xerrors.Wrap(xerrors.Internal, err, "create directories for %q", key)
	}
	if err := os.WriteFile(p, value, 0o644); err != nil { // #nosec G306 - profile data is not secret
		return xerrors.Wrap(xerrors.Internal, err, "write object %q", key)
	}
	return nil
}

// List implements Store.
func (l *Local) List(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	root := l.path(prefix)
	base := l.Root
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == root {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(base, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, xerrors.Wrap(xerrors.Internal, err, "list prefix %q", prefix)
	}
	sort.Strings(keys)
	return keys, nil
}
