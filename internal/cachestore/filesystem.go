package cachestore

import (
	"os"
	"path/filepath"

	"github.com/amaydixit11/mindoodb/internal/mderrors"
)

// FilesystemStore persists each (type, id) entry as its own file under
// <dir>/<type>/<id>, written atomically (temp file + fsync + rename), the
// pattern internal/blob/store.go uses for content-addressed payloads.
type FilesystemStore struct {
	dir string
}

func NewFilesystemStore(dir string) (*FilesystemStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, &mderrors.IoError{Op: "mkdir cachestore", Err: err}
	}
	return &FilesystemStore{dir: dir}, nil
}

func (f *FilesystemStore) path(key Key) string {
	return filepath.Join(f.dir, sanitizeSegment(key.Type), sanitizeSegment(key.ID))
}

func (f *FilesystemStore) Get(key Key) ([]byte, bool, error) {
	data, err := os.ReadFile(f.path(key))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, &mderrors.IoError{Op: "read cache entry", Err: err}
	}
	return data, true, nil
}

func (f *FilesystemStore) Put(key Key, value []byte) error {
	path := f.path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return &mderrors.IoError{Op: "mkdir cache entry dir", Err: err}
	}
	tmp := path + ".tmp"
	fh, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return &mderrors.IoError{Op: "open temp cache entry", Err: err}
	}
	if _, err := fh.Write(value); err != nil {
		fh.Close()
		return &mderrors.IoError{Op: "write cache entry", Err: err}
	}
	if err := fh.Sync(); err != nil {
		fh.Close()
		return &mderrors.IoError{Op: "fsync cache entry", Err: err}
	}
	if err := fh.Close(); err != nil {
		return &mderrors.IoError{Op: "close cache entry", Err: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		return &mderrors.IoError{Op: "rename cache entry", Err: err}
	}
	return nil
}

func (f *FilesystemStore) Delete(key Key) error {
	err := os.Remove(f.path(key))
	if err != nil && !os.IsNotExist(err) {
		return &mderrors.IoError{Op: "delete cache entry", Err: err}
	}
	return nil
}

func (f *FilesystemStore) List(typ string) ([]Key, error) {
	dir := filepath.Join(f.dir, sanitizeSegment(typ))
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, &mderrors.IoError{Op: "list cache entries", Err: err}
	}
	out := make([]Key, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) == ".tmp" {
			continue
		}
		out = append(out, Key{Type: typ, ID: e.Name()})
	}
	return out, nil
}

func (f *FilesystemStore) Clear() error {
	if err := os.RemoveAll(f.dir); err != nil {
		return &mderrors.IoError{Op: "clear cachestore", Err: err}
	}
	return os.MkdirAll(f.dir, 0700)
}

// sanitizeSegment keeps path-separator characters out of a type/id used to
// build a filesystem path.
func sanitizeSegment(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '/' || r == '\\' || r == 0 {
			out = append(out, '_')
			continue
		}
		out = append(out, r)
	}
	if len(out) == 0 {
		return "_"
	}
	return string(out)
}
