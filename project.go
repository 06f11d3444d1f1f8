package depsnap

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/jward/depsnap/internal/executor"
	"github.com/jward/depsnap/internal/framework"
	"github.com/jward/depsnap/internal/handlers"
	"github.com/jward/depsnap/internal/model"
	"github.com/jward/depsnap/internal/rule"
	"github.com/jward/depsnap/internal/snapshot"
	"github.com/jward/depsnap/internal/tree"
)

// Project is the dependency state of one project. Batches are applied one
// at a time in submission order; each produces a new immutable snapshot
// that is published atomically.
//
// Thread safety: all methods may be called concurrently.
type Project struct {
	engine    *Engine
	path      string
	log       logrus.FieldLogger
	registry  *handlers.Registry
	slot      *snapshot.Slot
	exec      *executor.Sequential
	debouncer *executor.Debouncer
	builder   *tree.Builder

	mu       sync.Mutex
	watchSub *handlers.Subscription
	subs     map[int]func(context.Context, DependenciesChangedEvent)
	nextSub  int
	pending  *DependenciesChangedEvent

	treeMu sync.Mutex
	tree   *tree.Node

	closeOnce sync.Once
}

func newProject(e *Engine, path string, reg *handlers.Registry, initial *Snapshot) *Project {
	if initial == nil {
		initial = snapshot.Empty(path)
	}
	p := &Project{
		engine:   e,
		path:     path,
		log:      e.log.WithField("project", path),
		registry: reg,
		slot:     snapshot.NewSlot(initial),
		exec:     executor.NewSequential(e.ctx),
		builder:  tree.NewBuilder(e.roots...),
		subs:     make(map[int]func(context.Context, DependenciesChangedEvent)),
	}
	if e.debounce > 0 {
		p.debouncer = executor.NewDebouncer(e.debounce)
	}
	return p
}

// watch keeps project references in step with the projects they point to.
func (p *Project) watch() {
	h, ok := p.registry.Lookup(model.ProjectDependency)
	if !ok {
		return
	}
	ph, ok := h.(*handlers.ProjectHandler)
	if !ok {
		return
	}
	sub := ph.Watch(p.path, p.engine, p.Snapshot, func(ctx context.Context, b *snapshot.ChangeBuilder) {
		p.Submit(ctx, Update{synthetic: b})
	})
	p.mu.Lock()
	p.watchSub = sub
	p.mu.Unlock()
}

// Path returns the project path.
func (p *Project) Path() string { return p.path }

// Snapshot returns the current snapshot.
func (p *Project) Snapshot() *Snapshot { return p.slot.Load() }

// Query returns a QueryBuilder over the current snapshot.
func (p *Project) Query() *QueryBuilder {
	return newQueryBuilder(p.Snapshot(), p.engine.frameworks)
}

// Tree builds the dependencies tree of the current snapshot against the
// tree returned by the previous call, and returns the edits between them.
func (p *Project) Tree() (*Node, []Edit) {
	p.treeMu.Lock()
	defer p.treeMu.Unlock()
	next, edits := p.builder.Build(p.tree, p.Snapshot())
	p.tree = next
	return next, edits
}

// Subscribe registers fn for the project's change events.
func (p *Project) Subscribe(fn func(context.Context, DependenciesChangedEvent)) *Subscription {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = fn
	return handlers.NewSubscription(func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.subs, id)
	})
}

// Submit queues u behind every batch submitted before it. The returned
// task fails with a closed error when the project closes before u runs.
// ctx cancels u while it is queued or running.
func (p *Project) Submit(ctx context.Context, u Update) *Task {
	return p.submit(ctx, u, nil)
}

func (p *Project) submit(ctx context.Context, u Update, result **Snapshot) *Task {
	return p.exec.Enqueue(func(execCtx context.Context) error {
		runCtx, cancel := context.WithCancel(execCtx)
		defer cancel()
		stop := context.AfterFunc(ctx, cancel)
		defer stop()

		next, err := p.apply(runCtx, u)
		if result != nil {
			*result = next
		}
		return err
	})
}

// Apply submits u and waits for it. It returns the snapshot published by
// u, which later batches may already have replaced.
func (p *Project) Apply(ctx context.Context, u Update) (*Snapshot, error) {
	var next *Snapshot
	if err := p.submit(ctx, u, &next).Wait(ctx); err != nil {
		if executor.IsClosed(err) {
			return nil, fmt.Errorf("%w: %w", ErrProjectClosed, err)
		}
		return nil, err
	}
	return next, nil
}

// Flush waits until every batch submitted so far has finished.
func (p *Project) Flush(ctx context.Context) error {
	err := p.exec.Enqueue(func(context.Context) error { return nil }).Wait(ctx)
	if executor.IsClosed(err) {
		return fmt.Errorf("%w: %w", ErrProjectClosed, err)
	}
	return err
}

type targetWork struct {
	target  framework.TargetFramework
	changes rule.Changes
}

// apply translates u and publishes the result. Runs on the project's
// executor only.
func (p *Project) apply(ctx context.Context, u Update) (*Snapshot, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return nil, p.cancelled(err)
	}
	cur := p.slot.Load()
	if u.empty() {
		return cur, nil
	}

	var (
		targets    []framework.TargetFramework
		active     framework.TargetFramework
		setTargets bool
	)
	if len(u.Targets) > 0 {
		setTargets = true
		for _, name := range u.Targets {
			tf, ok := p.engine.frameworks.GetTargetFramework(name)
			if !ok {
				p.log.WithField("target", name).Warn("depsnap: ignoring unknown target")
				continue
			}
			targets = append(targets, tf)
		}
	}
	if u.ActiveTarget != "" {
		if tf, ok := p.engine.frameworks.GetTargetFramework(u.ActiveTarget); ok {
			active = tf
		} else {
			p.log.WithField("target", u.ActiveTarget).Warn("depsnap: ignoring unknown active target")
		}
		if !setTargets {
			setTargets = true
			targets = cur.TargetFrameworks()
		}
	}
	base := cur
	if setTargets {
		base = cur.SetTargets(targets, active)
	}

	builders, err := p.translate(ctx, p.plan(base, u, len(u.Targets) > 0))
	if err != nil {
		if ctx.Err() != nil {
			return nil, p.cancelled(ctx.Err())
		}
		return nil, fmt.Errorf("depsnap: translate %s: %w", p.path, err)
	}
	changes := snapshot.NewChangeBuilder()
	for _, b := range builders {
		changes.Merge(b)
	}
	changes.Merge(u.synthetic)

	// Nothing is published once the batch is cancelled.
	if err := ctx.Err(); err != nil {
		return nil, p.cancelled(err)
	}
	prev, next := p.slot.Update(func(s *Snapshot) *Snapshot {
		if setTargets {
			s = s.SetTargets(targets, active)
		}
		return s.Apply(changes, u.Catalogs)
	})
	p.engine.metrics.BatchApplied(p.path, time.Since(start))
	if err := p.published(ctx, prev, next, changes, true); err != nil {
		return next, err
	}
	return next, nil
}

// plan pairs each change set of u with its target in base. With an
// explicit target list, changes for targets outside it are dropped.
func (p *Project) plan(base *Snapshot, u Update, restricted bool) []targetWork {
	var work []targetWork
	add := func(name string, changes rule.Changes) {
		if len(changes) == 0 {
			return
		}
		tf, ok := p.targetFor(base, name)
		if ok && restricted {
			_, ok = base.Target(tf)
		}
		if !ok {
			p.log.WithField("target", name).Warn("depsnap: no target for changes, skipping")
			return
		}
		work = append(work, targetWork{target: tf, changes: changes})
	}
	add(u.Target, u.Changes)
	for _, name := range sortedKeys(u.PerTarget) {
		add(name, u.PerTarget[name])
	}
	return work
}

// targetFor resolves a target name against the targets of s. An empty name
// means the active target, or the engine's default target when s has none.
func (p *Project) targetFor(s *Snapshot, name string) (framework.TargetFramework, bool) {
	if name == "" {
		if tf := s.ActiveTarget(); !tf.IsEmpty() {
			return tf, true
		}
		name = p.engine.defaultTgt
		if name == "" {
			return framework.TargetFramework{}, false
		}
	}
	for _, tf := range s.TargetFrameworks() {
		if strings.EqualFold(tf.String(), name) || strings.EqualFold(tf.ShortName, name) || strings.EqualFold(tf.FullName, name) {
			return tf, true
		}
	}
	return p.engine.frameworks.GetTargetFramework(name)
}

// translate runs the handlers for each target concurrently. Every target
// gets its own builder; results keep the order of work.
func (p *Project) translate(ctx context.Context, work []targetWork) ([]*snapshot.ChangeBuilder, error) {
	out := make([]*snapshot.ChangeBuilder, len(work))
	g, gctx := errgroup.WithContext(ctx)
	for i, w := range work {
		g.Go(func() error {
			b := snapshot.NewChangeBuilder()
			if err := p.registry.Handle(gctx, w.changes, w.target, b); err != nil {
				return err
			}
			out[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Project) cancelled(err error) error {
	p.log.WithError(err).Debug("depsnap: batch cancelled")
	p.engine.metrics.BatchCancelled()
	return err
}

// published runs the follow-up of a slot change: metrics, persistence,
// subscriber events and the cross-project notification.
func (p *Project) published(ctx context.Context, prev, next *Snapshot, changes *ChangeBuilder, persist bool) error {
	if next == prev {
		return nil
	}
	m := p.engine.metrics
	if len(prev.Targets()) != len(next.Targets()) {
		m.ForgetProject(p.path)
	}
	for _, ts := range next.Targets() {
		m.SetDependencies(p.path, ts.TargetFramework().String(), ts.Len())
	}

	var err error
	if persist && p.engine.store != nil {
		// A published snapshot is saved even if the batch is cancelled now.
		if serr := p.engine.store.SaveSnapshot(context.WithoutCancel(ctx), next); serr != nil {
			p.log.WithError(serr).Error("depsnap: saving snapshot failed")
			err = fmt.Errorf("depsnap: save %s: %w", p.path, serr)
		}
	}

	if changes == nil {
		changes = snapshot.NewChangeBuilder()
	}
	p.publish(ctx, DependenciesChangedEvent{
		ProjectPath: p.path,
		Previous:    prev,
		Current:     next,
		Targets:     changedTargets(prev, next),
		Providers:   changes.Providers(),
		Changes:     changes,
	})
	p.engine.broadcast(ProjectEvent{ProjectPath: p.path})
	return err
}

// changedTargets names the targets whose targeted snapshot was replaced,
// added or dropped.
func changedTargets(prev, next *Snapshot) []string {
	var out []string
	for _, ts := range next.Targets() {
		if old, ok := prev.Target(ts.TargetFramework()); !ok || old != ts {
			out = append(out, ts.TargetFramework().String())
		}
	}
	for _, ts := range prev.Targets() {
		if _, ok := next.Target(ts.TargetFramework()); !ok {
			out = append(out, ts.TargetFramework().String())
		}
	}
	return out
}

func (p *Project) publish(ctx context.Context, ev DependenciesChangedEvent) {
	if p.debouncer == nil {
		p.deliver(ctx, ev)
		return
	}
	p.mu.Lock()
	if p.pending == nil {
		p.pending = &ev
	} else {
		merged := p.pending.merge(ev)
		p.pending = &merged
	}
	p.mu.Unlock()

	p.debouncer.Schedule(func(ctx context.Context) {
		p.mu.Lock()
		pending := p.pending
		p.pending = nil
		p.mu.Unlock()
		if pending != nil {
			p.deliver(ctx, *pending)
		}
	})
}

func (p *Project) deliver(ctx context.Context, ev DependenciesChangedEvent) {
	p.mu.Lock()
	ids := make([]int, 0, len(p.subs))
	for id := range p.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(context.Context, DependenciesChangedEvent), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, p.subs[id])
	}
	p.mu.Unlock()
	for _, fn := range fns {
		fn(ctx, ev)
	}
}

// replace publishes a stored snapshot as the project's next state.
func (p *Project) replace(ctx context.Context, snap *Snapshot) error {
	err := p.exec.Enqueue(func(execCtx context.Context) error {
		prev, next := p.slot.Update(func(*Snapshot) *Snapshot { return snap })
		return p.published(execCtx, prev, next, nil, false)
	}).Wait(ctx)
	if executor.IsClosed(err) {
		return fmt.Errorf("%w: %w", ErrProjectClosed, err)
	}
	return err
}

// Close cancels the project's pending batches, stops watching referenced
// projects and tells the projects that reference this one that it is gone.
// Close is idempotent.
func (p *Project) Close() error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		sub := p.watchSub
		p.mu.Unlock()
		sub.Close()

		p.exec.Close()
		if p.debouncer != nil {
			p.debouncer.Close()
		}
		p.engine.metrics.ForgetProject(p.path)
		p.engine.forget(p)
		p.engine.broadcast(ProjectEvent{ProjectPath: p.path, Unloaded: true})
	})
	return nil
}
