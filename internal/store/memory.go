package store

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/jward/depsnap/internal/snapshot"
)

// MemoryStore keeps snapshots in memory. Snapshots are immutable, so it
// stores the published values themselves.
//
// Thread safety: the mutex protects the map; returned snapshots are shared
// read-only values.
type MemoryStore struct {
	mu    sync.Mutex
	snaps map[string]memoryEntry
}

type memoryEntry struct {
	snap    *snapshot.Snapshot
	savedAt time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snaps: make(map[string]memoryEntry)}
}

func (m *MemoryStore) SaveSnapshot(ctx context.Context, s *snapshot.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps[s.ProjectPath()] = memoryEntry{snap: s, savedAt: time.Now().UTC()}
	return nil
}

func (m *MemoryStore) LoadSnapshot(ctx context.Context, projectPath string) (*snapshot.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.snaps[projectPath]
	if !ok {
		return nil, ErrNotFound
	}
	return e.snap, nil
}

func (m *MemoryStore) Projects(ctx context.Context) ([]ProjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ProjectInfo, 0, len(m.snaps))
	for path, e := range m.snaps {
		n := 0
		for _, ts := range e.snap.Targets() {
			n += ts.Len()
		}
		out = append(out, ProjectInfo{
			Path:         path,
			ActiveTarget: e.snap.ActiveTarget().String(),
			Targets:      len(e.snap.Targets()),
			Dependencies: n,
			SavedAt:      e.savedAt,
		})
	}
	slices.SortFunc(out, func(a, b ProjectInfo) int { return strings.Compare(a.Path, b.Path) })
	return out, nil
}

func (m *MemoryStore) DeleteProject(ctx context.Context, projectPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snaps, projectPath)
	return nil
}
