package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jward/depsnap"
)

// formatSummaryText formats the per-target counts of a project.
func formatSummaryText(w io.Writer, s CLIProjectSummary) {
	fmt.Fprintf(w, "Project: %s\n", s.Project)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  TARGET\tDEPENDENCIES\tTOP-LEVEL\tRESOLVED\tUNRESOLVED\tDIAGNOSTIC")
	for _, t := range s.Targets {
		name := t.Target
		if t.Active {
			name += " *"
		}
		fmt.Fprintf(tw, "  %s\t%d\t%d\t%d\t%d\t%s\n",
			name, t.Dependencies, t.TopLevel, t.Resolved, t.Unresolved, t.Diagnostic)
	}
	tw.Flush()
}

// formatDependenciesText formats dependencies as aligned columns.
func formatDependenciesText(w io.Writer, deps []CLIDependency) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PROVIDER\tID\tVERSION\tTARGET\tSTATUS")
	for _, d := range deps {
		status := "resolved"
		if !d.Resolved {
			status = "unresolved"
		}
		if d.DiagnosticLevel != "None" {
			status += " (" + strings.ToLower(d.DiagnosticLevel) + ")"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", d.ProviderType, d.ID, d.Version, d.Target, status)
	}
	tw.Flush()
}

// formatTreeText prints the tree indented by depth. Hidden nodes are
// skipped along with their subtrees.
func formatTreeText(w io.Writer, root *depsnap.Node) {
	hiddenDepth := -1
	root.Walk(func(depth int, n *depsnap.Node) {
		if hiddenDepth >= 0 && depth > hiddenDepth {
			return
		}
		hiddenDepth = -1
		if !n.Visible {
			hiddenDepth = depth
			return
		}
		marker := ""
		if n.DiagnosticLevel > 0 {
			marker = " [" + strings.ToLower(n.DiagnosticLevel.String()) + "]"
		}
		fmt.Fprintf(w, "%s%s%s\n", strings.Repeat("  ", depth), n.Caption, marker)
	})
}

// formatConflictsText formats version conflicts per project.
func formatConflictsText(w io.Writer, projects []CLIProjectConflicts) {
	for _, p := range projects {
		fmt.Fprintf(w, "Project: %s\n", p.Project)
		for _, c := range p.Conflicts {
			versions := make([]string, 0, len(c.Targets))
			for _, tv := range c.Targets {
				versions = append(versions, tv.Target+"="+tv.Version)
			}
			fmt.Fprintf(w, "  %s: %s\n", c.Package, strings.Join(versions, ", "))
		}
	}
}

// formatProjectsText formats stored projects as aligned columns.
func formatProjectsText(w io.Writer, infos []depsnap.ProjectInfo) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PROJECT\tACTIVE\tTARGETS\tDEPENDENCIES\tSAVED")
	for _, p := range infos {
		saved := ""
		if !p.SavedAt.IsZero() {
			saved = p.SavedAt.Local().Format(time.DateTime)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", p.Path, p.ActiveTarget, p.Targets, p.Dependencies, saved)
	}
	tw.Flush()
}

// outputResultText dispatches to the appropriate text formatter based on the
// result type. It writes to os.Stdout.
func outputResultText(result CLIResult) error {
	w := io.Writer(os.Stdout)

	switch v := result.Results.(type) {
	case []CLIProjectSummary:
		for i, s := range v {
			if i > 0 {
				fmt.Fprintln(w)
			}
			formatSummaryText(w, s)
		}
	case CLIProjectDetail:
		formatSummaryText(w, v.CLIProjectSummary)
		fmt.Fprintln(w)
		formatDependenciesText(w, v.Dependencies)
	case *depsnap.Node:
		formatTreeText(w, v)
	case []CLIProjectConflicts:
		formatConflictsText(w, v)
	case []depsnap.ProjectInfo:
		formatProjectsText(w, v)
	case []string:
		for _, s := range v {
			fmt.Fprintln(w, s)
		}
	case nil:
	default:
		return fmt.Errorf("unsupported result type for text format: %T", v)
	}
	return nil
}

// outputResult marshals a CLIResult to stdout in the selected format.
func outputResult(result CLIResult) error {
	if flagFormat == "text" {
		return outputResultText(result)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// outputError writes an error in the selected format and returns it so RunE
// can propagate it to Cobra. In JSON mode the error is written to stdout as a
// CLIResult envelope. In text mode it goes to stderr.
func outputError(command string, err error) error {
	errorHandled = true
	if flagFormat == "text" {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return err
	}
	result := CLIResult{
		Command: command,
		Error:   err.Error(),
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(result)
	return err
}

// validFormats lists accepted values for --format.
var validFormats = []string{"json", "text"}

// validateFormat checks that the --format flag value is recognized.
func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be %s", format, strings.Join(validFormats, " or "))
}
