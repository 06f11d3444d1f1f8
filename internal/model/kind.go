package model

import "strings"

// Kind is the dependency category. Each kind carries its own flag and icon
// tables; behaviour that differs per category switches on Kind.
type Kind int

const (
	KindUnknown Kind = iota
	KindPackage
	KindAssembly
	KindProject
	KindFramework
	KindSdk
	KindAnalyzer
	KindCom
	KindDiagnostic
	// Package sub-kinds reported by the package resolver.
	KindFrameworkAssembly
	KindAnalyzerAssembly
)

var kindNames = [...]string{
	KindUnknown:           "Unknown",
	KindPackage:           "Package",
	KindAssembly:          "Assembly",
	KindProject:           "Project",
	KindFramework:         "Framework",
	KindSdk:               "Sdk",
	KindAnalyzer:          "Analyzer",
	KindCom:               "Com",
	KindDiagnostic:        "Diagnostic",
	KindFrameworkAssembly: "FrameworkAssembly",
	KindAnalyzerAssembly:  "AnalyzerAssembly",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "Unknown"
	}
	return kindNames[k]
}

// ParseKind maps a name to a Kind case-insensitively. Unrecognized names
// yield KindUnknown.
func ParseKind(s string) Kind {
	for i, n := range kindNames {
		if strings.EqualFold(n, s) {
			return Kind(i)
		}
	}
	return KindUnknown
}

// Provider types. Every dependency belongs to exactly one provider, which
// owns a root node in the dependencies tree.
const (
	NuGetDependency     = "NuGetDependency"
	AssemblyDependency  = "AssemblyDependency"
	ProjectDependency   = "ProjectDependency"
	FrameworkDependency = "FrameworkDependency"
	SdkDependency       = "SdkDependency"
	AnalyzerDependency  = "AnalyzerDependency"
	ComDependency       = "ComDependency"
)

// DiagnosticLevel is the severity attached to a dependency.
type DiagnosticLevel int

const (
	DiagnosticNone DiagnosticLevel = iota
	DiagnosticWarning
	DiagnosticError
)

func (l DiagnosticLevel) String() string {
	switch l {
	case DiagnosticWarning:
		return "Warning"
	case DiagnosticError:
		return "Error"
	default:
		return "None"
	}
}

// ParseDiagnosticLevel parses a severity string. Unrecognized values yield
// DiagnosticNone.
func ParseDiagnosticLevel(s string) DiagnosticLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "warning", "warn":
		return DiagnosticWarning
	case "error":
		return DiagnosticError
	default:
		return DiagnosticNone
	}
}

// Max returns the higher of two levels.
func (l DiagnosticLevel) Max(o DiagnosticLevel) DiagnosticLevel {
	return max(l, o)
}
