// Package store keeps the records of acted instructions and observed elements.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrNotFound is returned when no record has the requested id
var ErrNotFound = errors.New("record not found")

// ActionRecord is the last outcome of an instruction. An empty Result means the action was
// not found on the page.
type ActionRecord struct {
	ID        string
	Session   string
	Action    string
	Result    string
	URL       string
	CreatedAt time.Time
}

// ObservationRecord is one element reported by an observation
type ObservationRecord struct {
	ID          string
	Session     string
	Instruction string
	Description string
	Locator     []string
	URL         string
	CreatedAt   time.Time
}

// Store persists records. Recording an existing id replaces it.
type Store interface {
	RecordAction(ctx context.Context, rec ActionRecord) error
	RecordObservation(ctx context.Context, rec ObservationRecord) error
	Action(ctx context.Context, id string) (*ActionRecord, error)
	Observations(ctx context.Context, session string) ([]ObservationRecord, error)
	Close() error
}

// Key derives the record id of an operation
func Key(operation string) string {
	sum := sha256.Sum256([]byte(operation))
	return hex.EncodeToString(sum[:])
}

// Open returns a SQLite store at path, or an in-memory store when path is empty.
func Open(ctx context.Context, path string) (Store, error) {
	if path == "" {
		return NewMemory(), nil
	}
	return OpenSQLite(ctx, path)
}

// Memory is a Store held in maps
type Memory struct {
	mu           sync.RWMutex
	actions      map[string]ActionRecord
	observations map[string]ObservationRecord
}

// NewMemory returns an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		actions:      make(map[string]ActionRecord),
		observations: make(map[string]ObservationRecord),
	}
}

func (m *Memory) RecordAction(_ context.Context, rec ActionRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions[rec.ID] = rec
	return nil
}

func (m *Memory) RecordObservation(_ context.Context, rec ObservationRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.Locator = append([]string(nil), rec.Locator...)
	m.observations[rec.ID] = rec
	return nil
}

func (m *Memory) Action(_ context.Context, id string) (*ActionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.actions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

// Observations returns the session's records oldest first. An empty session returns all.
func (m *Memory) Observations(_ context.Context, session string) ([]ObservationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ObservationRecord
	for _, rec := range m.observations {
		if session == "" || rec.Session == session {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *Memory) Close() error { return nil }
