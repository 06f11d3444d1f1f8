package depsnap

import (
	"io"

	"github.com/jward/depsnap/internal/executor"
	"github.com/jward/depsnap/internal/framework"
	"github.com/jward/depsnap/internal/handlers"
	"github.com/jward/depsnap/internal/model"
	"github.com/jward/depsnap/internal/rule"
	"github.com/jward/depsnap/internal/snapshot"
	"github.com/jward/depsnap/internal/store"
	"github.com/jward/depsnap/internal/tree"
)

// Public type aliases for internal types used in the Engine and
// QueryBuilder APIs. These are Go type aliases (=) and need no conversion.

type Dependency = model.Dependency
type Model = model.Model
type DependencyID = model.DependencyID
type DiagnosticLevel = model.DiagnosticLevel
type TargetFramework = framework.TargetFramework
type FrameworkProvider = framework.Provider

type Snapshot = snapshot.Snapshot
type TargetedSnapshot = snapshot.TargetedSnapshot
type ChangeBuilder = snapshot.ChangeBuilder

type Changes = rule.Changes
type Change = rule.Change
type Properties = rule.Properties
type RuleSnapshot = rule.Snapshot
type Batch = rule.Batch

type Handler = handlers.Handler
type ProjectEvent = handlers.ProjectEvent
type Subscription = handlers.Subscription

type Node = tree.Node
type Edit = tree.Edit
type ProviderRoot = tree.ProviderRoot

type SnapshotStore = store.SnapshotStore
type Store = store.Store
type ProjectInfo = store.ProjectInfo

type Task = executor.Task

// OpenStore opens (creating if needed) the SQLite snapshot store at path.
func OpenStore(path string) (*Store, error) {
	return store.Open(path)
}

// NewMemoryStore returns an in-memory SnapshotStore.
func NewMemoryStore() SnapshotStore {
	return store.NewMemoryStore()
}

// ErrNotFound is returned by Restore and Forget for projects the store does
// not hold.
var ErrNotFound = store.ErrNotFound

// DecodeBatches reads a JSON or YAML batch file.
func DecodeBatches(r io.Reader, format string) ([]Batch, error) {
	return rule.DecodeBatches(r, format)
}

// BatchFormat picks the batch format for a file name by its extension.
func BatchFormat(path string) string {
	return rule.FormatForPath(path)
}
