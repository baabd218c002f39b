// Package memory implements an in-process log sink.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/passeplat/passeplat/logsink"
)

// Sink keeps the records in memory, by index.
type Sink struct {
	mu      sync.RWMutex
	indices map[string][]logsink.Hit
	closed  bool
}

func New() *Sink {
	return &Sink{indices: make(map[string][]logsink.Hit)}
}

func copyRecord(r logsink.Record) logsink.Record {
	c := make(logsink.Record, len(r))
	for k, v := range r {
		c[k] = v
	}

	return c
}

func (s *Sink) add(index string, r logsink.Record) (string, error) {
	if s.closed {
		return "", logsink.ErrClosed
	}

	id := uuid.NewString()
	s.indices[index] = append(s.indices[index], logsink.Hit{ID: id, Record: copyRecord(r)})
	return id, nil
}

func (s *Sink) LogItem(_ context.Context, index string, r logsink.Record) (logsink.ItemResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, err := s.add(index, r)
	if err != nil {
		return logsink.ItemResult{}, err
	}

	return logsink.ItemResult{ID: id, Result: logsink.ResultCreated}, nil
}

func (s *Sink) LogBulk(_ context.Context, index string, r []logsink.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ri := range r {
		if _, err := s.add(index, ri); err != nil {
			return err
		}
	}

	return nil
}

// Search returns the matching records, newest first. Records without a
// valid time are the oldest, and the later stored records come first
// among the ones with equal time.
func (s *Sink) Search(ctx context.Context, index string, q logsink.Query) ([]logsink.Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, logsink.ErrClosed
	}

	var hits []logsink.Hit
	all := s.indices[index]
	for i := len(all) - 1; i >= 0; i-- {
		if q.Match(all[i].Record) {
			hits = append(hits, logsink.Hit{ID: all[i].ID, Record: copyRecord(all[i].Record)})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		ti, iok := hits[i].Record.Time()
		tj, jok := hits[j].Record.Time()
		if iok != jok {
			return iok
		}

		return ti.After(tj)
	})

	if len(hits) > q.Limit() {
		hits = hits[:q.Limit()]
	}

	return hits, nil
}

// Records returns a copy of the records of an index, in the order they
// were stored.
func (s *Sink) Records(index string) []logsink.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var r []logsink.Record
	for _, h := range s.indices[index] {
		r = append(r, copyRecord(h.Record))
	}

	return r
}

func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
