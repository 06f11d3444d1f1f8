package handlers

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/jward/depsnap/internal/model"
	"github.com/jward/depsnap/internal/snapshot"
)

// ProjectEvent reports that another project's snapshot changed or that the
// project was unloaded.
type ProjectEvent struct {
	ProjectPath string
	Unloaded    bool
}

// Notifier delivers ProjectEvents. Subscribe returns the function that
// removes the subscription.
type Notifier interface {
	Subscribe(fn func(context.Context, ProjectEvent)) (unsubscribe func())
}

// Emit publishes a synthetic change produced outside a rule batch.
type Emit func(ctx context.Context, b *snapshot.ChangeBuilder)

// ProjectHandler handles project-to-project references and keeps their
// resolution state in step with the referenced projects.
type ProjectHandler struct {
	*Base
}

// NewProjectHandler returns the project reference handler.
func NewProjectHandler(env Env) *ProjectHandler {
	return &ProjectHandler{
		Base: NewBase(env, model.ProjectDependency, ProjectReferenceRule, ResolvedProjectReferenceRule, projectModel),
	}
}

// Subscription is a registration returned by Watch. Close is idempotent.
type Subscription struct {
	once        sync.Once
	unsubscribe func()
}

// NewSubscription wraps an unsubscribe function.
func NewSubscription(unsubscribe func()) *Subscription {
	return &Subscription{unsubscribe: unsubscribe}
}

// Close removes the registration.
func (s *Subscription) Close() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		if s.unsubscribe != nil {
			s.unsubscribe()
		}
	})
}

// Watch subscribes to n on behalf of the project at selfPath. current must
// return the project's snapshot at the time an event is handled.
func (h *ProjectHandler) Watch(selfPath string, n Notifier, current func() *snapshot.Snapshot, emit Emit) *Subscription {
	unsub := n.Subscribe(func(ctx context.Context, ev ProjectEvent) {
		h.OnProjectEvent(ctx, selfPath, ev, current(), emit)
	})
	return NewSubscription(unsub)
}

// OnProjectEvent looks for a top-level project reference to ev's project in
// snap and re-emits it as resolved (changed) or unresolved (unloaded). At
// most one dependency is updated per event. Events about the project itself
// and events arriving after cancellation are ignored.
func (h *ProjectHandler) OnProjectEvent(ctx context.Context, selfPath string, ev ProjectEvent, snap *snapshot.Snapshot, emit Emit) {
	if ctx.Err() != nil || snap == nil || SamePath(selfPath, ev.ProjectPath) {
		return
	}
	for _, ts := range snap.Targets() {
		for _, d := range ts.TopLevelDependencies() {
			if !strings.EqualFold(d.ProviderType(), model.ProjectDependency) || !SamePath(d.Path(), ev.ProjectPath) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			b := snapshot.NewChangeBuilder()
			b.AddedDependency(d.WithResolved(!ev.Unloaded))
			h.env.Log.WithFields(logrus.Fields{
				"project":    selfPath,
				"referenced": ev.ProjectPath,
				"unloaded":   ev.Unloaded,
			}).Debug("handlers: refreshing project reference")
			emit(ctx, b)
			return
		}
	}
}

// SamePath compares two project paths after cleaning, case-insensitively.
func SamePath(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	norm := func(p string) string {
		return filepath.Clean(strings.ReplaceAll(p, `\`, "/"))
	}
	return strings.EqualFold(norm(a), norm(b))
}
