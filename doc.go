// Package depsnap maintains the dependency graph of managed-language
// projects from incremental build-system rule changes and projects it into
// a dependencies tree.
//
// # Pipeline
//
// Each batch of rule changes flows through three stages:
//
//  1. Translate: per-category rule handlers (packages, assemblies, project
//     references, frameworks, SDKs, analyzers, COM references and scripted
//     categories) turn the changes of every target into additions and
//     removals on a change builder. Targets are translated concurrently.
//
//  2. Apply: the change builder is applied to the project's current
//     snapshot, producing a new immutable snapshot. Targets the batch does
//     not touch are carried over by reference. The new snapshot is
//     published atomically and, when a store is configured, persisted.
//
//  3. Notify: subscribers receive a DependenciesChangedEvent, and projects
//     that reference the changed project refresh their reference.
//
// Batches of one project are applied strictly in submission order. Closing
// a project cancels the batches that have not started.
//
// # Usage
//
//	e, err := depsnap.New(depsnap.WithStore(depsnap.NewMemoryStore()))
//	if err != nil { ... }
//	defer e.Close()
//
//	p, err := e.Project("/src/app/app.csproj")
//	snap, err := p.Apply(ctx, depsnap.Update{
//		Targets: []string{"net8.0"},
//		Changes: changes,
//	})
//
//	root, edits := p.Tree()
//	conflicts := p.Query().VersionConflicts()
//
// # Scripts
//
// Categories without a built-in handler can be described by Risor scripts
// under <scripts>/handlers/<ProviderType>.risor. See the internal/runtime
// package for the globals exposed to scripts.
package depsnap
