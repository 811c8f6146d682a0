// Package payload is the file-backed key→document store for request
// templates (data/) and per-flow metadata (tmp/). Templates on disk are
// immutable from the harness's point of view; loads hand out deep copies.
package payload

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"adqa/internal/jsondoc"
)

type Store struct {
	DataDir string
	TmpDir  string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewStore(dataDir, tmpDir string) *Store {
	return &Store{
		DataDir: dataDir,
		TmpDir:  tmpDir,
		locks:   map[string]*sync.Mutex{},
	}
}

// Template loads data/payloads/<name>.json and returns a mutable copy.
func (s *Store) Template(name string) (map[string]any, error) {
	path := filepath.Join(s.DataDir, "payloads", name+".json")
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading payload template %q: %w", name, err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("payload template %q is not a JSON object: %w", name, err)
	}
	return jsondoc.DeepCopy(doc).(map[string]any), nil
}

// Meta reads the metadata record for a logical flow. A missing file is an
// empty record: flows start from nothing on fresh checkouts.
func (s *Store) Meta(flow string) (Record, error) {
	raw, err := os.ReadFile(s.metaPath(flow))
	if os.IsNotExist(err) {
		return Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading flow metadata %q: %w", flow, err)
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("flow metadata %q is corrupt: %w", flow, err)
	}
	return rec, nil
}

// SaveMeta persists the record, serializing writers per flow key.
func (s *Store) SaveMeta(flow string, rec Record) error {
	lock := s.keyLock(flow)
	lock.Lock()
	defer lock.Unlock()
	return s.write(flow, rec)
}

// UpdateMeta merges fields into the existing record. The read-merge-write
// cycle runs under the key lock so concurrent phase writers never lose
// each other's fields.
func (s *Store) UpdateMeta(flow string, fields map[string]any) (Record, error) {
	lock := s.keyLock(flow)
	lock.Lock()
	defer lock.Unlock()

	rec, err := s.Meta(flow)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		rec = Record{}
	}
	for k, v := range fields {
		rec[k] = v
	}
	if err := s.write(flow, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Store) write(flow string, rec Record) error {
	if err := os.MkdirAll(s.TmpDir, 0o755); err != nil {
		return fmt.Errorf("creating tmp dir: %w", err)
	}
	raw, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.metaPath(flow), raw, 0o644)
}

func (s *Store) metaPath(flow string) string {
	return filepath.Join(s.TmpDir, flow+".json")
}

func (s *Store) keyLock(flow string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[flow]
	if !ok {
		l = &sync.Mutex{}
		s.locks[flow] = l
	}
	return l
}
