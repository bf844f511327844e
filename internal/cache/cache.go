// Package cache holds short-lived values such as per-deck card samples.
package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/vthunder/toolbot/internal/logging"
)

// Store is a byte cache with a fixed TTL
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Close() error
}

// GetJSON decodes a cached value. Misses and errors both report false.
func GetJSON[T any](ctx context.Context, s Store, key string) (T, bool) {
	var v T
	data, ok, err := s.Get(ctx, key)
	if err != nil {
		logging.Warn("cache", "get %s: %v", key, err)
		return v, false
	}
	if !ok {
		return v, false
	}
	if err := json.Unmarshal(data, &v); err != nil {
		logging.Warn("cache", "decode %s: %v", key, err)
		return v, false
	}
	return v, true
}

// SetJSON encodes and stores a value, logging failures
func SetJSON(ctx context.Context, s Store, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		logging.Warn("cache", "encode %s: %v", key, err)
		return
	}
	if err := s.Set(ctx, key, data); err != nil {
		logging.Warn("cache", "set %s: %v", key, err)
	}
}

type memEntry struct {
	value   []byte
	expires time.Time
}

// Memory is an in-process Store
type Memory struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]memEntry
	now     func() time.Time
}

// NewMemory creates an in-process cache
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		ttl:     ttl,
		entries: make(map[string]memEntry),
		now:     time.Now,
	}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if m.ttl > 0 && !m.now().Before(e.expires) {
		delete(m.entries, key)
		return nil, false, nil
	}
	return e.value, true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = memEntry{value: value, expires: m.now().Add(m.ttl)}
	return nil
}

func (m *Memory) Close() error { return nil }
