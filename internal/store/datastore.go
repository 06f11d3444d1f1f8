package store

import (
	"context"
	"errors"
	"time"

	"github.com/jward/depsnap/internal/snapshot"
)

// ErrNotFound is returned when a project or metadata key is not stored.
var ErrNotFound = errors.New("store: not found")

// SnapshotStore is the interface for snapshot persistence. Both Store
// (SQLite) and MemoryStore (in-process) implement it.
type SnapshotStore interface {
	// SaveSnapshot replaces the stored snapshot of s.ProjectPath().
	SaveSnapshot(ctx context.Context, s *snapshot.Snapshot) error
	// LoadSnapshot returns the stored snapshot of a project or ErrNotFound.
	LoadSnapshot(ctx context.Context, projectPath string) (*snapshot.Snapshot, error)
	// Projects lists the stored projects ordered by path.
	Projects(ctx context.Context) ([]ProjectInfo, error)
	// DeleteProject removes a project. Unknown projects are ignored.
	DeleteProject(ctx context.Context, projectPath string) error
}

// ProjectInfo summarizes one stored project.
type ProjectInfo struct {
	Path         string    `json:"path"`
	ActiveTarget string    `json:"active_target"`
	Targets      int       `json:"targets"`
	Dependencies int       `json:"dependencies"`
	SavedAt      time.Time `json:"saved_at"`
}

// Compile-time checks.
var (
	_ SnapshotStore = (*Store)(nil)
	_ SnapshotStore = (*MemoryStore)(nil)
)
