package checkpoint

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aager/image-backfill/pkg/core"
)

// MemoryStore implements core.CheckpointStore in memory. Lineages survive
// Close and reopen within the same process, which is enough for tests and
// dry runs; nothing survives a restart.
type MemoryStore struct {
	mu       sync.RWMutex
	lineages []memoryLineage
	active   int // index into lineages, -1 when closed
}

type memoryLineage struct {
	info core.Lineage
	done map[string]core.CompletedEntry
}

// NewMemoryStore creates an empty in-memory checkpoint store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{active: -1}
}

func (s *MemoryStore) Open(_ context.Context, mode core.RunMode) (core.Lineage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if mode == core.ModeResume {
		for i := len(s.lineages) - 1; i >= 0; i-- {
			if s.lineages[i].info.Mode != core.ModeTest {
				s.active = i
				return s.lineages[i].info, nil
			}
		}
	}

	now := time.Now()
	s.lineages = append(s.lineages, memoryLineage{
		info: core.Lineage{ID: uuid.New().String(), Mode: mode, StartedAt: now, UpdatedAt: now},
		done: make(map[string]core.CompletedEntry),
	})
	s.active = len(s.lineages) - 1
	return s.lineages[s.active].info, nil
}

func (s *MemoryStore) MarkCompleted(_ context.Context, entry core.CompletedEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active < 0 {
		return core.ErrCheckpointClosed
	}
	lineage := &s.lineages[s.active]
	if _, exists := lineage.done[entry.ItemID]; exists {
		return nil
	}
	if entry.CompletedAt.IsZero() {
		entry.CompletedAt = time.Now()
	}
	lineage.done[entry.ItemID] = entry
	lineage.info.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) IsCompleted(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.active < 0 {
		return false
	}
	_, ok := s.lineages[s.active].done[id]
	return ok
}

func (s *MemoryStore) Completed() []core.CompletedEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.active < 0 {
		return nil
	}
	done := s.lineages[s.active].done
	entries := make([]core.CompletedEntry, 0, len(done))
	for _, e := range done {
		entries = append(entries, e)
	}
	return entries
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.active = -1
	s.mu.Unlock()
	return nil
}
