package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/jward/depsnap"
	"github.com/jward/depsnap/internal/handlers"
)

var (
	flagReset       bool
	flagDryRun      bool
	flagMetrics     bool
	flagInputFormat string
)

var applyCmd = &cobra.Command{
	Use:   "apply <batch-file>...",
	Short: "Apply batches of rule changes to the stored snapshots",
	Long:  "Reads JSON or YAML batch files (\"-\" for stdin), applies each batch in order to its project's stored snapshot and saves the results.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runApply,
}

func init() {
	applyCmd.Flags().BoolVar(&flagReset, "reset", false, "delete the database and start from empty snapshots")
	applyCmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "report the resulting snapshots without saving them")
	applyCmd.Flags().BoolVar(&flagMetrics, "metrics", false, "print engine metrics to stderr when done")
	applyCmd.Flags().StringVar(&flagInputFormat, "input-format", "", "batch format: json|yaml (default: by file extension, json for stdin)")
}

func runApply(cmd *cobra.Command, args []string) error {
	start := time.Now()
	ctx := context.Background()

	var batches []depsnap.Batch
	for _, path := range args {
		bs, err := readBatches(path)
		if err != nil {
			return outputError("apply", err)
		}
		batches = append(batches, bs...)
	}

	if flagReset && !flagDryRun {
		if err := resetDatabase(); err != nil {
			return outputError("apply", err)
		}
	}

	persist := cfg.Engine.Persist && !flagDryRun
	reg := prometheus.NewRegistry()
	e, err := openEngine(ctx, engineOptions{create: true, persist: persist, registry: reg})
	if err != nil {
		return outputError("apply", err)
	}
	defer e.Close()

	stored, err := e.Projects(ctx)
	if err != nil {
		return outputError("apply", err)
	}
	if len(stored) > 0 && e.ScriptsChanged(ctx) {
		logger.Warn("handler scripts changed since the last apply; stored snapshots were built with the old scripts")
	}

	// Continue from the stored snapshots of the projects being updated.
	for _, path := range batchProjects(batches) {
		for _, info := range stored {
			if handlers.SamePath(info.Path, path) {
				if _, err := e.Restore(ctx, info.Path); err != nil {
					return outputError("apply", err)
				}
				break
			}
		}
	}

	if err := e.Apply(ctx, batches); err != nil {
		return outputError("apply", err)
	}
	if persist {
		if err := e.RecordScripts(ctx); err != nil {
			return outputError("apply", err)
		}
	}

	var results []CLIProjectSummary
	for _, path := range batchProjects(batches) {
		p, ok := e.Lookup(path)
		if !ok {
			continue
		}
		results = append(results, projectSummary(p.Query()))
	}

	fmt.Fprintf(os.Stderr, "Applied %d batches to %d projects in %s\n",
		len(batches), len(results), time.Since(start).Round(time.Millisecond))
	if flagMetrics {
		if err := writeMetrics(os.Stderr, reg); err != nil {
			return outputError("apply", err)
		}
	}
	return outputResult(CLIResult{Command: "apply", Results: results})
}

// readBatches decodes one batch file, or stdin for "-".
func readBatches(path string) ([]depsnap.Batch, error) {
	format := flagInputFormat
	var r io.Reader
	if path == "-" {
		if format == "" {
			format = "json"
		}
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening batch file: %w", err)
		}
		defer f.Close()
		if format == "" {
			format = depsnap.BatchFormat(path)
		}
		r = f
	}
	batches, err := depsnap.DecodeBatches(r, format)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return batches, nil
}

// batchProjects returns the distinct project paths of batches in first-seen
// order.
func batchProjects(batches []depsnap.Batch) []string {
	var out []string
	for _, b := range batches {
		seen := false
		for _, p := range out {
			if handlers.SamePath(p, b.Project) {
				seen = true
				break
			}
		}
		if !seen && b.Project != "" {
			out = append(out, b.Project)
		}
	}
	return out
}

// resetDatabase deletes the database file and its WAL side files.
func resetDatabase() error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting cwd: %w", err)
	}
	dbPath := resolveDBPath(findRepoRoot(cwd), cfg.Store.Path)
	for _, p := range []string{dbPath, dbPath + "-wal", dbPath + "-shm"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing database for --reset: %w", err)
		}
	}
	fmt.Fprintf(os.Stderr, "Cleared database: %s\n", dbPath)
	return nil
}

// writeMetrics prints every sample gathered from reg, one per line.
func writeMetrics(w io.Writer, reg prometheus.Gatherer) error {
	families, err := reg.Gather()
	if err != nil {
		return fmt.Errorf("gathering metrics: %w", err)
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			labels := ""
			for i, lp := range m.GetLabel() {
				if i > 0 {
					labels += ","
				}
				labels += fmt.Sprintf("%s=%q", lp.GetName(), lp.GetValue())
			}
			if labels != "" {
				labels = "{" + labels + "}"
			}
			var value float64
			switch {
			case m.GetCounter() != nil:
				value = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				value = m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				value = float64(m.GetHistogram().GetSampleCount())
			}
			fmt.Fprintf(w, "%s%s %g\n", mf.GetName(), labels, value)
		}
	}
	return nil
}
