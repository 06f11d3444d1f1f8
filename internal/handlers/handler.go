// Package handlers translates rule changes into dependency additions and
// removals, one handler per dependency category.
package handlers

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/jward/depsnap/internal/framework"
	"github.com/jward/depsnap/internal/metrics"
	"github.com/jward/depsnap/internal/rule"
	"github.com/jward/depsnap/internal/snapshot"
)

// Handler turns the rule changes of one target into ChangeBuilder calls.
// Handlers must not retain changes or the builder after Handle returns.
type Handler interface {
	ProviderType() string
	Handle(ctx context.Context, changes rule.Changes, target framework.TargetFramework, b *snapshot.ChangeBuilder) error
}

// Env carries the collaborators shared by all handlers.
type Env struct {
	Log        logrus.FieldLogger
	Metrics    *metrics.Collectors
	Frameworks framework.Provider
}

// WithDefaults fills in a discarding logger and the parsing framework
// provider where e leaves them nil.
func (e Env) WithDefaults() Env {
	if e.Log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		e.Log = l
	}
	if e.Frameworks == nil {
		e.Frameworks = framework.ParserProvider{}
	}
	return e
}

// Item is one rule item handed to a ModelFactory.
type Item struct {
	ItemSpec         string
	OriginalItemSpec string
	Properties       rule.Properties
	Resolved         bool
	Implicit         bool
	Rule             string
}

// isolate runs fn for one item and converts a panic into a logged, counted
// skip so that the rest of the batch is still processed.
func isolate(env Env, provider, itemSpec string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			env.Log.WithFields(logrus.Fields{
				"provider":  provider,
				"item_spec": itemSpec,
			}).Errorf("handlers: skipping item: %v", r)
			env.Metrics.ItemSkipped(provider)
		}
	}()
	fn()
}

// Registry holds the handlers of a project in provider order.
type Registry struct {
	env      Env
	handlers []Handler
}

// NewRegistry returns a registry with the given handlers.
func NewRegistry(env Env, hs ...Handler) *Registry {
	r := &Registry{env: env.WithDefaults()}
	for _, h := range hs {
		r.Register(h)
	}
	return r
}

// Register adds h, replacing a handler with the same provider type.
func (r *Registry) Register(h Handler) {
	for i, cur := range r.handlers {
		if strings.EqualFold(cur.ProviderType(), h.ProviderType()) {
			r.handlers[i] = h
			return
		}
	}
	r.handlers = append(r.handlers, h)
}

// Handlers returns the registered handlers in order.
func (r *Registry) Handlers() []Handler {
	return append([]Handler(nil), r.handlers...)
}

// Lookup returns the handler for providerType.
func (r *Registry) Lookup(providerType string) (Handler, bool) {
	for _, h := range r.handlers {
		if strings.EqualFold(h.ProviderType(), providerType) {
			return h, true
		}
	}
	return nil, false
}

// Handle runs every handler against changes in order. A handler that
// panics is logged and skipped; its partial output for this target is
// discarded. Cancellation stops the run and is returned as is.
func (r *Registry) Handle(ctx context.Context, changes rule.Changes, target framework.TargetFramework, b *snapshot.ChangeBuilder) error {
	for _, h := range r.handlers {
		if err := ctx.Err(); err != nil {
			return err
		}
		hb := snapshot.NewChangeBuilder()
		if err := r.run(ctx, h, changes, target, hb); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.env.Log.WithFields(logrus.Fields{
				"provider": h.ProviderType(),
				"target":   target.String(),
			}).WithError(err).Error("handlers: handler failed")
			continue
		}
		b.Merge(hb)
	}
	return nil
}

func (r *Registry) run(ctx context.Context, h Handler, changes rule.Changes, target framework.TargetFramework, b *snapshot.ChangeBuilder) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handlers: %s panicked: %v", h.ProviderType(), p)
		}
	}()
	return h.Handle(ctx, changes, target, b)
}

// DefaultHandlers returns the built-in handlers for every provider type.
func DefaultHandlers(env Env) []Handler {
	return []Handler{
		NewPackageHandler(env),
		NewProjectHandler(env),
		NewAssemblyHandler(env),
		NewFrameworkHandler(env),
		NewSdkHandler(env),
		NewAnalyzerHandler(env),
		NewComHandler(env),
	}
}
