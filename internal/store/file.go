package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/roach88/specforge/internal/ir"
	"github.com/roach88/specforge/internal/specerr"
)

// FileStore keeps one <id>.json document per session in a directory.
type FileStore struct {
	dir string
}

// NewFileStore creates dir if needed and returns a store rooted there.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, specerr.Wrap(specerr.IOError, err, "create store directory "+dir)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the store's root directory.
func (f *FileStore) Dir() string {
	return f.dir
}

func (f *FileStore) path(id string) string {
	return filepath.Join(f.dir, id+".json")
}

// Create writes a new session. The temp file is hard-linked into place so
// an existing session is never overwritten.
func (f *FileStore) Create(_ context.Context, s *ir.SpecSession) error {
	data, err := encodeSession(s)
	if err != nil {
		return err
	}
	tmp, err := writeTemp(f.dir, s.SessionID+".json", data, 0o644)
	if err != nil {
		return err
	}
	defer os.Remove(tmp)

	if err := os.Link(tmp, f.path(s.SessionID)); err != nil {
		if errors.Is(err, os.ErrExist) {
			return alreadyExists(s.SessionID)
		}
		return specerr.Wrap(specerr.IOError, err, "create session "+s.SessionID)
	}
	return nil
}

// Get reads a session.
func (f *FileStore) Get(_ context.Context, id string) (*ir.SpecSession, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.path(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, notFound(id)
		}
		return nil, specerr.Wrap(specerr.IOError, err, "read session "+id)
	}
	return decodeSession(id, data)
}

// Put atomically replaces an existing session.
func (f *FileStore) Put(_ context.Context, s *ir.SpecSession) error {
	data, err := encodeSession(s)
	if err != nil {
		return err
	}
	path := f.path(s.SessionID)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return notFound(s.SessionID)
		}
		return specerr.Wrap(specerr.IOError, err, "stat session "+s.SessionID)
	}
	return WriteFileAtomic(path, data, 0o644)
}

// List returns summaries of every session document in the directory.
func (f *FileStore) List(ctx context.Context) ([]ir.SessionSummary, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, specerr.Wrap(specerr.IOError, err, "list "+f.dir)
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		id, ok := strings.CutSuffix(e.Name(), ".json")
		if !ok || !e.Type().IsRegular() || ValidateID(id) != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]ir.SessionSummary, 0, len(ids))
	for _, id := range ids {
		s, err := f.Get(ctx, id)
		if err != nil {
			// Removed between ReadDir and Get.
			if specerr.Is(err, specerr.SessionNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, s.Summary())
	}
	return out, nil
}

