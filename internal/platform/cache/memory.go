package cache

import (
	"context"
	"sync"
	"time"
	"unicode"
)

// MemoryLayer is an in-process Layer with lazy TTL expiration.
// It suits a single instance; separate processes never see each other's entries.
type MemoryLayer struct {
	mu   sync.RWMutex
	data map[string]memoryEntry
	name string
	now  func() time.Time
}

type memoryEntry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

// NewMemoryLayer creates an empty in-memory layer
func NewMemoryLayer(name string) *MemoryLayer {
	if name == "" {
		name = "memory"
	}
	return &MemoryLayer{
		data: make(map[string]memoryEntry),
		name: name,
		now:  time.Now,
	}
}

// Get implements Layer
func (m *MemoryLayer) Get(ctx context.Context, key string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}

	m.mu.RLock()
	e, exists := m.data[key]
	m.mu.RUnlock()

	if !exists {
		return "", ErrKeyNotFound
	}
	if !e.expiresAt.IsZero() && m.now().After(e.expiresAt) {
		m.mu.Lock()
		delete(m.data, key)
		m.mu.Unlock()
		return "", ErrKeyNotFound
	}
	return e.value, nil
}

// Set implements Layer
func (m *MemoryLayer) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := validateKey(key); err != nil {
		return err
	}

	e := memoryEntry{value: value}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}

	m.mu.Lock()
	m.data[key] = e
	m.mu.Unlock()
	return nil
}

// Delete implements Layer
func (m *MemoryLayer) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
	return nil
}

// Name implements Layer
func (m *MemoryLayer) Name() string {
	return m.name
}

// Close drops every entry
func (m *MemoryLayer) Close() error {
	m.mu.Lock()
	m.data = make(map[string]memoryEntry)
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, expired ones included
func (m *MemoryLayer) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

// validateKey checks if a cache key is valid: non-empty, no whitespace, reasonable length
func validateKey(key string) error {
	if key == "" || len(key) > 250 {
		return ErrInvalidKey
	}
	for _, r := range key {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return ErrInvalidKey
		}
	}
	return nil
}
