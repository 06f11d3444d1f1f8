package depsnap

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/jward/depsnap/internal/framework"
	"github.com/jward/depsnap/internal/handlers"
	"github.com/jward/depsnap/internal/logging"
	"github.com/jward/depsnap/internal/metrics"
	"github.com/jward/depsnap/internal/runtime"
	"github.com/jward/depsnap/internal/store"
	"github.com/jward/depsnap/internal/tree"
)

// Engine owns the projects of one process: their handler registries,
// snapshot slots and tree builders. It also relays project changes between
// projects so project references follow the referenced project's state.
type Engine struct {
	log        logrus.FieldLogger
	store      store.SnapshotStore
	registerer prometheus.Registerer
	metrics    *metrics.Collectors
	frameworks framework.Provider
	scriptsDir string
	scriptsFS  fs.FS
	runtime    *runtime.Runtime
	debounce   time.Duration
	extra      []handlers.Handler
	roots      []tree.ProviderRoot
	defaultTgt string

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	projects map[string]*Project
	subs     map[int]func(context.Context, handlers.ProjectEvent)
	nextSub  int
	closed   bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger routes engine, handler and script logging to log.
func WithLogger(log logrus.FieldLogger) Option {
	return func(e *Engine) {
		e.log = log
	}
}

// WithStore persists every published snapshot to s and enables Restore.
func WithStore(s SnapshotStore) Option {
	return func(e *Engine) {
		e.store = s
	}
}

// WithMetrics registers the engine's prometheus collectors on reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(e *Engine) {
		e.registerer = reg
	}
}

// WithFrameworkProvider replaces the target framework lookup used by the
// handlers and for target names in updates.
func WithFrameworkProvider(p FrameworkProvider) Option {
	return func(e *Engine) {
		e.frameworks = p
	}
}

// WithScriptsDir loads scripted handlers from dir/handlers/*.risor.
func WithScriptsDir(dir string) Option {
	return func(e *Engine) {
		e.scriptsDir = dir
	}
}

// WithScriptsFS loads scripted handlers from fsys instead of from disk.
// This enables embedding scripts via go:embed.
func WithScriptsFS(fsys fs.FS) Option {
	return func(e *Engine) {
		e.scriptsFS = fsys
	}
}

// WithDebounce coalesces the change events of a burst of batches into one
// event per quiet period of d. Batches are still applied one by one.
func WithDebounce(d time.Duration) Option {
	return func(e *Engine) {
		e.debounce = d
	}
}

// WithHandlers adds handlers to every project, replacing built-in or
// scripted handlers of the same provider type.
func WithHandlers(hs ...Handler) Option {
	return func(e *Engine) {
		e.extra = append(e.extra, hs...)
	}
}

// WithTreeRoots registers provider roots for the dependencies tree in
// addition to the built-in ones.
func WithTreeRoots(roots ...ProviderRoot) Option {
	return func(e *Engine) {
		e.roots = append(e.roots, roots...)
	}
}

// WithDefaultTarget names the target used for changes that name none while
// the project has no active target yet.
func WithDefaultTarget(name string) Option {
	return func(e *Engine) {
		e.defaultTgt = name
	}
}

// New creates an Engine. Script handlers are loaded once here.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		projects: make(map[string]*Project),
		subs:     make(map[int]func(context.Context, handlers.ProjectEvent)),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = logging.Discard()
	}
	if e.frameworks == nil {
		cache, err := framework.NewCachingProvider(framework.ParserProvider{}, 256)
		if err != nil {
			return nil, fmt.Errorf("depsnap: framework cache: %w", err)
		}
		e.frameworks = cache
	}
	m, err := metrics.New(e.registerer)
	if err != nil {
		return nil, fmt.Errorf("depsnap: register metrics: %w", err)
	}
	e.metrics = m

	if e.scriptsDir != "" || e.scriptsFS != nil {
		var rtOpts []runtime.RuntimeOption
		if e.scriptsFS != nil {
			rtOpts = append(rtOpts, runtime.WithRuntimeFS(e.scriptsFS))
		}
		rtOpts = append(rtOpts, runtime.WithRuntimeLogger(e.log))
		e.runtime = runtime.NewRuntime(e.scriptsDir, rtOpts...)
		// Validate the scripts up front so a broken one fails New.
		if _, err := runtime.LoadScriptHandlers(e.runtime, e.env()); err != nil {
			return nil, fmt.Errorf("depsnap: load scripts: %w", err)
		}
	}

	e.ctx, e.cancel = context.WithCancel(context.Background())
	return e, nil
}

func (e *Engine) env() handlers.Env {
	return handlers.Env{Log: e.log, Metrics: e.metrics, Frameworks: e.frameworks}
}

// registry builds the handler set of one project: built-in handlers, then
// scripted handlers, then handlers added with WithHandlers.
func (e *Engine) registry() (*handlers.Registry, error) {
	env := e.env()
	r := handlers.NewRegistry(env, handlers.DefaultHandlers(env)...)
	if e.runtime != nil {
		scripted, err := runtime.LoadScriptHandlers(e.runtime, env)
		if err != nil {
			return nil, fmt.Errorf("depsnap: load scripts: %w", err)
		}
		for _, h := range scripted {
			r.Register(h)
		}
	}
	for _, h := range e.extra {
		r.Register(h)
	}
	return r, nil
}

func projectKey(path string) string {
	return strings.ToLower(filepath.Clean(strings.ReplaceAll(path, `\`, "/")))
}

// Project returns the open project at path, creating it with an empty
// snapshot when needed.
func (e *Engine) Project(path string) (*Project, error) {
	return e.project(path, nil)
}

func (e *Engine) project(path string, initial *Snapshot) (*Project, error) {
	if path == "" {
		return nil, errors.New("depsnap: project path must not be empty")
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrEngineClosed
	}
	key := projectKey(path)
	if p, ok := e.projects[key]; ok {
		e.mu.Unlock()
		return p, nil
	}
	reg, err := e.registry()
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}
	p := newProject(e, path, reg, initial)
	e.projects[key] = p
	e.mu.Unlock()

	// Subscribing takes e.mu.
	p.watch()
	return p, nil
}

// Lookup returns the open project at path.
func (e *Engine) Lookup(path string) (*Project, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.projects[projectKey(path)]
	return p, ok
}

// OpenProjects returns the open projects sorted by path.
func (e *Engine) OpenProjects() []*Project {
	e.mu.Lock()
	out := make([]*Project, 0, len(e.projects))
	for _, p := range e.projects {
		out = append(out, p)
	}
	e.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].path < out[j].path })
	return out
}

func (e *Engine) forget(p *Project) {
	e.mu.Lock()
	defer e.mu.Unlock()
	key := projectKey(p.path)
	if cur, ok := e.projects[key]; ok && cur == p {
		delete(e.projects, key)
	}
}

// Restore opens the project at path with its stored snapshot. A project
// that is already open gets the stored snapshot applied as its next batch.
func (e *Engine) Restore(ctx context.Context, path string) (*Project, error) {
	if e.store == nil {
		return nil, fmt.Errorf("depsnap: restore %s: no store configured", path)
	}
	snap, err := e.store.LoadSnapshot(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("depsnap: restore %s: %w", path, err)
	}
	if p, ok := e.Lookup(path); ok {
		if err := p.replace(ctx, snap); err != nil {
			return nil, err
		}
		return p, nil
	}
	return e.project(path, snap)
}

// Forget closes the project at path, if open, and removes its stored
// snapshot.
func (e *Engine) Forget(ctx context.Context, path string) error {
	if p, ok := e.Lookup(path); ok {
		if err := p.Close(); err != nil {
			return err
		}
	}
	if e.store == nil {
		return nil
	}
	if err := e.store.DeleteProject(ctx, path); err != nil {
		return fmt.Errorf("depsnap: forget %s: %w", path, err)
	}
	return nil
}

// Apply runs each batch against its project in order, opening projects as
// needed. It stops at the first failure.
func (e *Engine) Apply(ctx context.Context, batches []Batch) error {
	for i, b := range batches {
		p, err := e.Project(b.Project)
		if err != nil {
			return fmt.Errorf("depsnap: batch %d: %w", i, err)
		}
		if _, err := p.Apply(ctx, UpdateFromBatch(b)); err != nil {
			return fmt.Errorf("depsnap: batch %d (%s): %w", i, b.Project, err)
		}
	}
	return nil
}

// Projects lists the stored projects. Without a store it lists the open
// projects.
func (e *Engine) Projects(ctx context.Context) ([]ProjectInfo, error) {
	if e.store != nil {
		infos, err := e.store.Projects(ctx)
		if err != nil {
			return nil, fmt.Errorf("depsnap: list projects: %w", err)
		}
		return infos, nil
	}
	var out []ProjectInfo
	for _, p := range e.OpenProjects() {
		snap := p.Snapshot()
		n := 0
		for _, ts := range snap.Targets() {
			n += ts.Len()
		}
		out = append(out, ProjectInfo{
			Path:         snap.ProjectPath(),
			ActiveTarget: snap.ActiveTarget().String(),
			Targets:      len(snap.Targets()),
			Dependencies: n,
		})
	}
	return out, nil
}

// Subscribe registers fn for project change and unload events. It
// implements the notifier the project reference handler watches.
func (e *Engine) Subscribe(fn func(context.Context, ProjectEvent)) (unsubscribe func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = fn
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.subs, id)
	}
}

func (e *Engine) broadcast(ev ProjectEvent) {
	e.mu.Lock()
	ids := make([]int, 0, len(e.subs))
	for id := range e.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(context.Context, ProjectEvent), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, e.subs[id])
	}
	e.mu.Unlock()
	for _, fn := range fns {
		fn(e.ctx, ev)
	}
}

// ScriptsChanged reports whether the handler scripts differ from those
// recorded in the store. It is false when there is no SQLite store.
func (e *Engine) ScriptsChanged(ctx context.Context) bool {
	s, ok := e.store.(*store.Store)
	if !ok {
		return false
	}
	stored, err := s.GetMetadata(ctx, "scripts_hash")
	if err != nil || stored == "" {
		return true
	}
	return stored != e.scriptsHash()
}

// RecordScripts stores the hash of the current handler scripts.
func (e *Engine) RecordScripts(ctx context.Context) error {
	s, ok := e.store.(*store.Store)
	if !ok {
		return nil
	}
	if err := s.SetMetadata(ctx, "scripts_hash", e.scriptsHash()); err != nil {
		return fmt.Errorf("depsnap: record scripts: %w", err)
	}
	return nil
}

// scriptsHash computes a SHA-256 over the handler scripts' names and
// contents, sorted by name.
func (e *Engine) scriptsHash() string {
	h := sha256.New()
	if e.runtime != nil {
		names, _ := e.runtime.HandlerScripts()
		for _, name := range names {
			src, err := e.runtime.LoadScript(runtime.HandlerScriptPath(name))
			if err != nil {
				continue
			}
			h.Write([]byte(name))
			h.Write([]byte(src))
		}
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// Close closes every open project, cancelling their pending batches, and
// then the store when it holds resources.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	projects := make([]*Project, 0, len(e.projects))
	for _, p := range e.projects {
		projects = append(projects, p)
	}
	e.mu.Unlock()

	var errs []error
	for _, p := range projects {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	e.cancel()
	if c, ok := e.store.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("depsnap: close store: %w", err))
		}
	}
	return errors.Join(errs...)
}
