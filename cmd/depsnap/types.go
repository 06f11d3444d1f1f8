package main

import "github.com/jward/depsnap"

// CLIResult is the top-level JSON envelope for all commands.
type CLIResult struct {
	Command string `json:"command"`
	Results any    `json:"results"`
	Error   string `json:"error,omitempty"`
}

// CLIProjectSummary is a project with its per-target counts.
type CLIProjectSummary struct {
	Project      string                  `json:"project"`
	ActiveTarget string                  `json:"active_target"`
	Targets      []depsnap.TargetSummary `json:"targets"`
}

// CLIProjectDetail extends CLIProjectSummary with a dependency listing.
type CLIProjectDetail struct {
	CLIProjectSummary
	Target       string          `json:"target,omitempty"`
	Dependencies []CLIDependency `json:"dependencies"`
}

// CLIDependency is a JSON-friendly dependency representation.
type CLIDependency struct {
	ID              string   `json:"id"`
	ProviderType    string   `json:"provider_type"`
	Caption         string   `json:"caption"`
	Kind            string   `json:"kind"`
	Version         string   `json:"version,omitempty"`
	Path            string   `json:"path,omitempty"`
	Target          string   `json:"target"`
	Resolved        bool     `json:"resolved"`
	Implicit        bool     `json:"implicit"`
	TopLevel        bool     `json:"top_level"`
	DiagnosticLevel string   `json:"diagnostic_level"`
	Children        []string `json:"children,omitempty"`
}

// CLIProjectConflicts lists the version conflicts of one project.
type CLIProjectConflicts struct {
	Project   string                    `json:"project"`
	Conflicts []depsnap.VersionConflict `json:"conflicts"`
}
