package storage

import (
	"context"
	"fmt"
	"sync"
)

type memoryStore struct {
	mu   sync.RWMutex
	cols map[string][]entry
	seq  seqGen

	// appendHook persists an entry before it becomes visible (file driver).
	appendHook func(collection string, e entry) error
	closeHook  func() error
}

// NewMemory returns an empty in-process gateway.
func NewMemory() Gateway {
	return newMemoryStore()
}

func newMemoryStore() *memoryStore {
	return &memoryStore{cols: map[string][]entry{}}
}

func (s *memoryStore) Insert(ctx context.Context, collection string, doc any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !validCollection(collection) {
		return "", fmt.Errorf("%w: %q", ErrInvalidCollection, collection)
	}
	m, id, err := toDocument(doc)
	if err != nil {
		return "", err
	}
	e := entry{seq: s.seq.next(), doc: m}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cols == nil {
		return "", ErrDisabled
	}
	if s.appendHook != nil {
		if err := s.appendHook(collection, e); err != nil {
			return "", err
		}
	}
	s.cols[collection] = append(s.cols[collection], e)
	return id, nil
}

func (s *memoryStore) Find(ctx context.Context, collection string, q Query, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !validCollection(collection) {
		return fmt.Errorf("%w: %q", ErrInvalidCollection, collection)
	}
	filter, err := normalizeFilter(q.Filter)
	if err != nil {
		return err
	}
	field, desc, err := parseSort(q.Sort)
	if err != nil {
		return err
	}

	s.mu.RLock()
	if s.cols == nil {
		s.mu.RUnlock()
		return ErrDisabled
	}
	var hits []entry
	for _, e := range s.cols[collection] {
		if matches(e.doc, filter) {
			hits = append(hits, e)
		}
	}
	s.mu.RUnlock()

	sortEntries(hits, field, desc)
	if q.Limit > 0 && len(hits) > q.Limit {
		hits = hits[:q.Limit]
	}
	docs := make([]map[string]any, len(hits))
	for i, e := range hits {
		docs[i] = e.doc
	}
	return decodeInto(docs, out)
}

func (s *memoryStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cols == nil {
		return ErrDisabled
	}
	return nil
}

func (s *memoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cols == nil {
		return nil
	}
	s.cols = nil
	if s.closeHook != nil {
		return s.closeHook()
	}
	return nil
}

// load adds an entry read from disk. Caller owns s.mu.
func (s *memoryStore) load(collection string, e entry) {
	s.seq.observe(e.seq)
	s.cols[collection] = append(s.cols[collection], e)
}
