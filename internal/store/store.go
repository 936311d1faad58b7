package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"edustatus/internal/metrics"
)

// Kind names one persisted collection.
type Kind string

const (
	KindAccounts    Kind = "accounts"
	KindSubmissions Kind = "submissions"
	KindDerived     Kind = "derived-data"
	KindSession     Kind = "current_user"
)

var kinds = []Kind{KindAccounts, KindSubmissions, KindDerived, KindSession}

// Store is the single owner of all persisted documents. It keeps no copy of them: reads
// go to the Medium and every change is an atomic read-modify-write there, so several
// processes can share one medium without overwriting each other.
type Store struct {
	mu     sync.Mutex
	medium Medium
	closed bool
}

// Open checks that every collection on m is readable and well-formed.
func Open(ctx context.Context, m Medium) (*Store, error) {
	for _, k := range kinds {
		raw, err := m.Load(ctx, string(k))
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("store: restore %s: %w", k, err)
		}
		if !json.Valid(raw) {
			return nil, fmt.Errorf("store: restore %s: invalid json document", k)
		}
	}
	return &Store{medium: m}, nil
}

// Ping checks the medium is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.medium.Ping(ctx)
}

// Close releases the medium. Every change is already durable, so nothing is written.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.medium.Close()
}

func (s *Store) check() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("store: closed")
	}
	return nil
}

// read decodes the collection kind into dst and reports whether it exists.
// Missing collections leave dst untouched.
func (s *Store) read(ctx context.Context, kind Kind, dst any) (bool, error) {
	if err := s.check(); err != nil {
		return false, err
	}
	raw, err := s.medium.Load(ctx, string(kind))
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: load %s: %w", kind, err)
	}
	return true, decode(kind, raw, dst)
}

// update applies fn to the current content of kind as one atomic step on the medium.
// fn decodes raw itself and returns the value to persist, or nil to leave kind unchanged.
func (s *Store) update(ctx context.Context, kind Kind, fn func(raw []byte) (any, error)) error {
	if err := s.check(); err != nil {
		return err
	}
	start := time.Now()
	defer func() {
		metrics.StoreFlush.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
	}()
	return s.medium.Update(ctx, string(kind), func(current []byte) ([]byte, error) {
		v, err := fn(current)
		if err != nil || v == nil {
			return nil, err
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("store: encode %s: %w", kind, err)
		}
		return raw, nil
	})
}

// remove drops kind from the medium.
func (s *Store) remove(ctx context.Context, kind Kind) error {
	if err := s.check(); err != nil {
		return err
	}
	if err := s.medium.Delete(ctx, string(kind)); err != nil {
		return fmt.Errorf("store: delete %s: %w", kind, err)
	}
	return nil
}

func decode(kind Kind, raw []byte, dst any) error {
	if raw == nil {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("store: decode %s: %w", kind, err)
	}
	return nil
}
