// Package framework identifies compilation targets (target frameworks) and
// resolves the monikers the build system embeds in item specs.
package framework

import (
	"fmt"
	"strconv"
	"strings"
)

// TargetFramework identifies one compilation target of a project.
// FullName is the long form (".NETCoreApp,Version=v8.0"); ShortName is the
// moniker used in project files ("net8.0").
type TargetFramework struct {
	FullName  string
	ShortName string
}

var (
	// Empty is the zero target, used for projects with no known targets.
	Empty = TargetFramework{}

	// Any matches items that are not specific to a target.
	Any = TargetFramework{FullName: "any", ShortName: "any"}
)

// IsEmpty reports whether t carries no name at all.
func (t TargetFramework) IsEmpty() bool {
	return t.FullName == "" && t.ShortName == ""
}

// Key returns a normalized key suitable for maps. Two targets with equal
// keys are the same target.
func (t TargetFramework) Key() string {
	if t.FullName != "" {
		return strings.ToLower(t.FullName)
	}
	return strings.ToLower(t.ShortName)
}

// Equal compares two targets case-insensitively by full name, falling
// back to the short name when either full name is missing.
func (t TargetFramework) Equal(o TargetFramework) bool {
	if t.FullName != "" && o.FullName != "" {
		return strings.EqualFold(t.FullName, o.FullName)
	}
	return strings.EqualFold(t.ShortName, o.ShortName)
}

func (t TargetFramework) String() string {
	if t.ShortName != "" {
		return t.ShortName
	}
	return t.FullName
}

// Provider resolves a target moniker (short or full form) to a
// TargetFramework. Implementations return false for monikers they cannot
// interpret.
type Provider interface {
	GetTargetFramework(moniker string) (TargetFramework, bool)
}

// ParserProvider is a Provider backed by Parse with no caching.
type ParserProvider struct{}

// GetTargetFramework implements Provider.
func (ParserProvider) GetTargetFramework(moniker string) (TargetFramework, bool) {
	return Parse(moniker)
}

const (
	coreAppIdentifier   = ".NETCoreApp"
	standardIdentifier  = ".NETStandard"
	frameworkIdentifier = ".NETFramework"
)

// Parse interprets a target moniker. Both the short form ("net8.0",
// "netstandard2.0", "net472", "net8.0-windows") and the full form
// (".NETCoreApp,Version=v8.0") are accepted. Unrecognized non-empty monikers
// are returned verbatim as both names so that opaque targets still compare
// equal to themselves.
func Parse(moniker string) (TargetFramework, bool) {
	moniker = strings.TrimSpace(moniker)
	if moniker == "" {
		return Empty, false
	}
	if strings.EqualFold(moniker, "any") {
		return Any, true
	}
	if strings.Contains(moniker, ",") {
		return parseFullName(moniker), true
	}
	return parseShortName(moniker), true
}

func parseShortName(moniker string) TargetFramework {
	lower := strings.ToLower(moniker)
	base, platform, _ := strings.Cut(lower, "-")

	var full string
	switch {
	case strings.HasPrefix(base, "netcoreapp"):
		full = withVersion(coreAppIdentifier, strings.TrimPrefix(base, "netcoreapp"))
	case strings.HasPrefix(base, "netstandard"):
		full = withVersion(standardIdentifier, strings.TrimPrefix(base, "netstandard"))
	case strings.HasPrefix(base, "net"):
		version := strings.TrimPrefix(base, "net")
		if strings.Contains(version, ".") {
			if major, ok := majorVersion(version); ok && major >= 5 {
				full = withVersion(coreAppIdentifier, version)
			}
		} else if isDigits(version) {
			full = withVersion(frameworkIdentifier, dotted(version))
		}
	}
	if full == "" {
		return TargetFramework{FullName: moniker, ShortName: moniker}
	}
	if platform != "" {
		full += ",Platform=" + platform
	}
	return TargetFramework{FullName: full, ShortName: lower}
}

func parseFullName(moniker string) TargetFramework {
	parts := strings.Split(moniker, ",")
	identifier := strings.TrimSpace(parts[0])
	var version, platform string
	for _, p := range parts[1:] {
		k, v, ok := strings.Cut(strings.TrimSpace(p), "=")
		if !ok {
			continue
		}
		switch strings.ToLower(k) {
		case "version":
			version = strings.TrimPrefix(strings.TrimPrefix(v, "v"), "V")
		case "platform":
			platform = strings.ToLower(v)
		}
	}

	var short string
	switch {
	case strings.EqualFold(identifier, coreAppIdentifier):
		if major, ok := majorVersion(version); ok && major >= 5 {
			short = "net" + version
		} else {
			short = "netcoreapp" + version
		}
	case strings.EqualFold(identifier, standardIdentifier):
		short = "netstandard" + version
	case strings.EqualFold(identifier, frameworkIdentifier):
		short = "net" + strings.ReplaceAll(version, ".", "")
	default:
		return TargetFramework{FullName: moniker, ShortName: moniker}
	}
	if platform != "" {
		short += "-" + platform
	}
	return TargetFramework{FullName: moniker, ShortName: short}
}

func withVersion(identifier, version string) string {
	return fmt.Sprintf("%s,Version=v%s", identifier, version)
}

func majorVersion(version string) (int, bool) {
	head, _, _ := strings.Cut(version, ".")
	n, err := strconv.Atoi(head)
	if err != nil {
		return 0, false
	}
	return n, true
}

// dotted turns "472" into "4.7.2" and "45" into "4.5".
func dotted(digits string) string {
	if len(digits) <= 1 {
		return digits + ".0"
	}
	return strings.Join(strings.Split(digits, ""), ".")
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
