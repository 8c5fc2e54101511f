package state

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"
)

// fileDocument is the on-disk layout: {"bookmarks": {stream: {key: value}}}.
type fileDocument struct {
	Bookmarks map[string]map[string]string `json:"bookmarks"`
}

// FileStore keeps bookmarks in a JSON file. Every SetBookmark rewrites the
// file via a temp file and rename so a crash mid-write never leaves a
// truncated document behind.
type FileStore struct {
	path   string
	policy Policy
	doc    fileDocument
}

// NewFileStore loads the state file at path, or starts empty when the file
// does not exist. A present but malformed file is an error; silently
// starting over would re-sync the full lookback.
func NewFileStore(path string, policy Policy) (*FileStore, error) {
	policy.normalize()
	s := &FileStore{
		path:   path,
		policy: policy,
		doc:    fileDocument{Bookmarks: map[string]map[string]string{}},
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading state file %s: %w", path, err)
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &s.doc); err != nil {
			return nil, fmt.Errorf("parsing state file %s: %w", path, err)
		}
	}
	if s.doc.Bookmarks == nil {
		s.doc.Bookmarks = map[string]map[string]string{}
	}
	return s, nil
}

// Bookmark implements Store.
func (s *FileStore) Bookmark(_ context.Context, stream string) (string, bool, error) {
	fields, ok := s.doc.Bookmarks[stream]
	if !ok {
		return "", false, nil
	}
	v, ok := s.policy.lookup(fields)
	return v, ok, nil
}

// SetBookmark implements Store. The updated document is flushed to disk
// before returning.
func (s *FileStore) SetBookmark(_ context.Context, stream, value string) error {
	fields, ok := s.doc.Bookmarks[stream]
	if !ok {
		fields = map[string]string{}
		s.doc.Bookmarks[stream] = fields
	}
	fields[s.policy.BookmarkKey] = value
	return s.flush()
}

// Snapshot implements Store.
func (s *FileStore) Snapshot(_ context.Context) (map[string]map[string]string, error) {
	out := make(map[string]map[string]string, len(s.doc.Bookmarks))
	for stream, fields := range s.doc.Bookmarks {
		cp := make(map[string]string, len(fields))
		for k, v := range fields {
			cp[k] = v
		}
		out[stream] = cp
	}
	return out, nil
}

func (s *FileStore) flush() error {
	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".state-*.json")
	if err != nil {
		return fmt.Errorf("creating temp state file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp state file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing state file: %w", err)
	}
	return nil
}
