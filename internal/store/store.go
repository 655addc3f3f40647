// Package store keys live documents by host key and exposes the engine's
// command surface against them. The registry map is guarded; mutations on a
// single document are not — callers must serialize operations per key, the
// same contract the document layer itself states.
package store

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/mergedoc/mergedoc/api"
	"github.com/mergedoc/mergedoc/internal/doc"
)

// ChangeSink receives the encoded change record produced by every successful
// mutating call, keyed by document. Delivery is fire-and-forget: a sink can
// never roll back the already-committed local mutation, so it has no error
// return. Downstream consumers catch up via later records.
type ChangeSink func(key string, change []byte)

type Store struct {
	mu   sync.RWMutex
	docs map[string]*doc.Document
	sink ChangeSink
}

func NewStore() *Store {
	return &Store{docs: make(map[string]*doc.Document)}
}

// SetChangeSink installs the replication/archival hook.
func (s *Store) SetChangeSink(sink ChangeSink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sink = sink
}

// New creates an empty document under key, replacing any existing one.
func (s *Store) New(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[key] = doc.New()
}

// Delete removes the document under key. Removing an absent key is a no-op.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, key)
}

// Get returns the live document for key, for callers that need the full
// engine surface directly.
func (s *Store) Get(key string) (*doc.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.docs[key]
	if !ok {
		return nil, fmt.Errorf("document %q: %w", key, api.ErrNotFound)
	}
	return d, nil
}

// Save returns the snapshot encoding of the document under key.
func (s *Store) Save(key string) ([]byte, error) {
	d, err := s.Get(key)
	if err != nil {
		return nil, err
	}
	return d.Save(), nil
}

// Load replaces the document under key with one reconstructed from snapshot
// bytes. On decode failure nothing changes.
func (s *Store) Load(key string, snapshot []byte) error {
	d, err := doc.Load(snapshot)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[key] = d
	return nil
}

// Apply merges encoded change records into the document under key.
func (s *Store) Apply(key string, changes ...[]byte) error {
	d, err := s.Get(key)
	if err != nil {
		return err
	}
	return d.ApplyChanges(changes)
}

// mutate runs fn against the document under key and hands the resulting
// change record to the sink on success. Operations that succeed without
// committing (a no-op diff) emit nothing; distinct commits never encode to
// equal bytes, so comparing against the prior record detects them.
func (s *Store) mutate(key string, fn func(*doc.Document) error) error {
	d, err := s.Get(key)
	if err != nil {
		return err
	}
	before := d.LastChange()
	if err := fn(d); err != nil {
		return err
	}
	s.mu.RLock()
	sink := s.sink
	s.mu.RUnlock()
	if sink != nil {
		if change := d.LastChange(); change != nil && !bytes.Equal(change, before) {
			sink(key, change)
		}
	}
	return nil
}

func (s *Store) PutText(key, path, value string) error {
	return s.mutate(key, func(d *doc.Document) error { return d.PutText(path, value) })
}

func (s *Store) PutInt(key, path string, value int64) error {
	return s.mutate(key, func(d *doc.Document) error { return d.PutInt(path, value) })
}

func (s *Store) PutDouble(key, path string, value float64) error {
	return s.mutate(key, func(d *doc.Document) error { return d.PutDouble(path, value) })
}

func (s *Store) PutBool(key, path string, value bool) error {
	return s.mutate(key, func(d *doc.Document) error { return d.PutBool(path, value) })
}

func (s *Store) GetText(key, path string) (string, error) {
	d, err := s.Get(key)
	if err != nil {
		return "", err
	}
	return d.GetText(path)
}

func (s *Store) GetInt(key, path string) (int64, error) {
	d, err := s.Get(key)
	if err != nil {
		return 0, err
	}
	return d.GetInt(path)
}

func (s *Store) GetDouble(key, path string) (float64, error) {
	d, err := s.Get(key)
	if err != nil {
		return 0, err
	}
	return d.GetDouble(path)
}

func (s *Store) GetBool(key, path string) (bool, error) {
	d, err := s.Get(key)
	if err != nil {
		return false, err
	}
	return d.GetBool(path)
}

func (s *Store) CreateList(key, path string) error {
	return s.mutate(key, func(d *doc.Document) error { return d.CreateList(path) })
}

func (s *Store) AppendText(key, path, value string) error {
	return s.mutate(key, func(d *doc.Document) error { return d.AppendText(path, value) })
}

func (s *Store) AppendInt(key, path string, value int64) error {
	return s.mutate(key, func(d *doc.Document) error { return d.AppendInt(path, value) })
}

func (s *Store) AppendDouble(key, path string, value float64) error {
	return s.mutate(key, func(d *doc.Document) error { return d.AppendDouble(path, value) })
}

func (s *Store) AppendBool(key, path string, value bool) error {
	return s.mutate(key, func(d *doc.Document) error { return d.AppendBool(path, value) })
}

func (s *Store) ListLen(key, path string) (int, error) {
	d, err := s.Get(key)
	if err != nil {
		return 0, err
	}
	return d.ListLen(path)
}

func (s *Store) SpliceText(key, path string, start, deleteCount int, insert string) error {
	return s.mutate(key, func(d *doc.Document) error {
		return d.SpliceText(path, start, deleteCount, insert)
	})
}

func (s *Store) PutDiff(key, path, diff string) error {
	return s.mutate(key, func(d *doc.Document) error { return d.PutDiff(path, diff) })
}
