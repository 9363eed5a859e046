// Package cache keeps raw stop-sequence payloads so repeated collection runs
// for the same service date do not hit the timetable API again.
package cache

import (
	"context"
	"fmt"
	"sync"
)

// StopCache stores raw stop payloads by key. A miss is (nil, false, nil).
type StopCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, payload []byte) error
}

// StopKey identifies the stops of one operation as requested at one time.
func StopKey(stationID, lineID, operationID, requestTime string) string {
	return fmt.Sprintf("%s:%s:%s:%s", stationID, lineID, operationID, requestTime)
}

// Memory is an in-process StopCache.
type Memory struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string][]byte)}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	payload, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(payload))
	copy(out, payload)
	return out, true, nil
}

func (m *Memory) Set(_ context.Context, key string, payload []byte) error {
	stored := make([]byte, len(payload))
	copy(stored, payload)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = stored
	return nil
}

// Len returns the number of cached payloads.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
