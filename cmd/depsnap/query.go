package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jward/depsnap"
)

var (
	flagTarget     string
	flagAll        bool
	flagUnresolved bool
)

var showCmd = &cobra.Command{
	Use:   "show <project>",
	Short: "Show the dependencies of a stored project",
	Long:  "Lists the top-level dependencies of one target (the active target by default) with per-target counts. --all lists transitive dependencies too.",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func init() {
	showCmd.Flags().StringVar(&flagTarget, "target", "", "target framework (default: the active target)")
	showCmd.Flags().BoolVar(&flagAll, "all", false, "include transitive dependencies")
	showCmd.Flags().BoolVar(&flagUnresolved, "unresolved", false, "list the unresolved dependencies of every target")
}

func runShow(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	e, err := openEngine(ctx, engineOptions{})
	if err != nil {
		return outputError("show", err)
	}
	defer e.Close()

	p, err := e.Restore(ctx, args[0])
	if err != nil {
		return outputError("show", err)
	}
	q := p.Query()

	detail := CLIProjectDetail{CLIProjectSummary: projectSummary(q)}
	var deps []*depsnap.Dependency
	switch {
	case flagUnresolved:
		deps = q.Unresolved()
	case flagAll:
		ts, err := q.Target(flagTarget)
		if err != nil {
			return outputError("show", err)
		}
		detail.Target = ts.TargetFramework().String()
		deps = ts.Dependencies()
	default:
		ts, err := q.Target(flagTarget)
		if err != nil {
			return outputError("show", err)
		}
		detail.Target = ts.TargetFramework().String()
		deps = ts.TopLevelDependencies()
	}
	detail.Dependencies = make([]CLIDependency, 0, len(deps))
	for _, d := range deps {
		detail.Dependencies = append(detail.Dependencies, dependencyToCLI(q, d))
	}
	return outputResult(CLIResult{Command: "show", Results: detail})
}

// projectSummary collects the per-target counts of a project.
func projectSummary(q *depsnap.QueryBuilder) CLIProjectSummary {
	snap := q.Snapshot()
	return CLIProjectSummary{
		Project:      snap.ProjectPath(),
		ActiveTarget: snap.ActiveTarget().String(),
		Targets:      q.Summary(),
	}
}

func dependencyToCLI(q *depsnap.QueryBuilder, d *depsnap.Dependency) CLIDependency {
	out := CLIDependency{
		ID:              d.ID(),
		ProviderType:    d.ProviderType(),
		Caption:         d.Caption(),
		Kind:            d.Kind().String(),
		Version:         d.Version(),
		Path:            d.Path(),
		Target:          d.TargetFramework().String(),
		Resolved:        d.Resolved(),
		Implicit:        d.Implicit(),
		TopLevel:        d.TopLevel(),
		DiagnosticLevel: d.DiagnosticLevel().String(),
	}
	for _, c := range q.Children(d) {
		out.Children = append(out.Children, c.ID())
	}
	return out
}

var treeCmd = &cobra.Command{
	Use:   "tree <project>",
	Short: "Render the dependencies tree of a stored project",
	Args:  cobra.ExactArgs(1),
	RunE:  runTree,
}

func runTree(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	e, err := openEngine(ctx, engineOptions{})
	if err != nil {
		return outputError("tree", err)
	}
	defer e.Close()

	p, err := e.Restore(ctx, args[0])
	if err != nil {
		return outputError("tree", err)
	}
	root, _ := p.Tree()
	return outputResult(CLIResult{Command: "tree", Results: root})
}

var conflictsCmd = &cobra.Command{
	Use:   "conflicts [project]...",
	Short: "Report packages that resolve to different versions across targets",
	Long:  "Checks the given projects, or every stored project, for packages whose resolved version differs between targets. The highest version is listed first.",
	RunE:  runConflicts,
}

func runConflicts(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	e, err := openEngine(ctx, engineOptions{})
	if err != nil {
		return outputError("conflicts", err)
	}
	defer e.Close()

	paths := args
	if len(paths) == 0 {
		infos, err := e.Projects(ctx)
		if err != nil {
			return outputError("conflicts", err)
		}
		for _, info := range infos {
			paths = append(paths, info.Path)
		}
	}

	results := []CLIProjectConflicts{}
	for _, path := range paths {
		p, err := e.Restore(ctx, path)
		if err != nil {
			return outputError("conflicts", err)
		}
		conflicts := p.Query().VersionConflicts()
		if len(conflicts) == 0 {
			continue
		}
		results = append(results, CLIProjectConflicts{Project: p.Path(), Conflicts: conflicts})
	}
	return outputResult(CLIResult{Command: "conflicts", Results: results})
}

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "List the stored projects",
	Args:  cobra.NoArgs,
	RunE:  runProjects,
}

func runProjects(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	e, err := openEngine(ctx, engineOptions{})
	if err != nil {
		return outputError("projects", err)
	}
	defer e.Close()

	infos, err := e.Projects(ctx)
	if err != nil {
		return outputError("projects", err)
	}
	if infos == nil {
		infos = []depsnap.ProjectInfo{}
	}
	return outputResult(CLIResult{Command: "projects", Results: infos})
}

var forgetCmd = &cobra.Command{
	Use:   "forget <project>...",
	Short: "Remove stored projects",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runForget,
}

func runForget(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	e, err := openEngine(ctx, engineOptions{persist: true})
	if err != nil {
		return outputError("forget", err)
	}
	defer e.Close()

	for _, path := range args {
		if err := e.Forget(ctx, path); err != nil {
			return outputError("forget", fmt.Errorf("forgetting %s: %w", path, err))
		}
	}
	return outputResult(CLIResult{Command: "forget", Results: args})
}
