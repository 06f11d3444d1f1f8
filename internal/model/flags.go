package model

import "strings"

// Flags are the tree capabilities of a node.
type Flags uint64

const (
	FlagDependency Flags = 1 << iota
	FlagResolved
	FlagUnresolved
	FlagSupportsRemove
	FlagSupportsHierarchy
	FlagShowEmptyProviderRoot
	FlagTargetNode
	FlagDependenciesRoot
	FlagProviderRoot
	FlagImplicit
	FlagPackage
	FlagAssembly
	FlagProject
	FlagFramework
	FlagSdk
	FlagAnalyzer
	FlagCom
	FlagDiagnostic
	FlagSharedProject
)

var flagNames = []struct {
	f    Flags
	name string
}{
	{FlagDependency, "Dependency"},
	{FlagResolved, "Resolved"},
	{FlagUnresolved, "Unresolved"},
	{FlagSupportsRemove, "SupportsRemove"},
	{FlagSupportsHierarchy, "SupportsHierarchy"},
	{FlagShowEmptyProviderRoot, "ShowEmptyProviderRoot"},
	{FlagTargetNode, "TargetNode"},
	{FlagDependenciesRoot, "DependenciesRoot"},
	{FlagProviderRoot, "ProviderRoot"},
	{FlagImplicit, "Implicit"},
	{FlagPackage, "Package"},
	{FlagAssembly, "Assembly"},
	{FlagProject, "Project"},
	{FlagFramework, "Framework"},
	{FlagSdk, "Sdk"},
	{FlagAnalyzer, "Analyzer"},
	{FlagCom, "Com"},
	{FlagDiagnostic, "Diagnostic"},
	{FlagSharedProject, "SharedProject"},
}

// Has reports whether all bits of o are set in f.
func (f Flags) Has(o Flags) bool { return f&o == o }

// Union returns f with the bits of o set.
func (f Flags) Union(o Flags) Flags { return f | o }

// Except returns f with the bits of o cleared.
func (f Flags) Except(o Flags) Flags { return f &^ o }

func (f Flags) String() string {
	if f == 0 {
		return "None"
	}
	var parts []string
	for _, n := range flagNames {
		if f.Has(n.f) {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// ParseFlags parses a "|"-separated flag list. Unknown names are ignored.
func ParseFlags(s string) Flags {
	var f Flags
	for part := range strings.SplitSeq(s, "|") {
		part = strings.TrimSpace(part)
		for _, n := range flagNames {
			if strings.EqualFold(n.name, part) {
				f |= n.f
			}
		}
	}
	return f
}

// kindFlags is the per-kind tag bit.
var kindFlags = map[Kind]Flags{
	KindPackage:           FlagPackage,
	KindAssembly:          FlagAssembly,
	KindProject:           FlagProject,
	KindFramework:         FlagFramework,
	KindSdk:               FlagSdk,
	KindAnalyzer:          FlagAnalyzer,
	KindCom:               FlagCom,
	KindDiagnostic:        FlagDiagnostic,
	KindFrameworkAssembly: FlagAssembly,
	KindAnalyzerAssembly:  FlagAnalyzer,
}

// flagTable holds the flags for each kind indexed by [resolved][implicit].
// Built once at init; every dependency of the same kind and state shares
// the same value.
var flagTable = func() map[Kind][2][2]Flags {
	t := make(map[Kind][2][2]Flags, len(kindNames))
	for i := range kindNames {
		k := Kind(i)
		base := FlagDependency | kindFlags[k]
		if k == KindPackage || k == KindProject {
			base |= FlagSupportsHierarchy
		}
		var row [2][2]Flags
		for r := range 2 {
			for im := range 2 {
				f := base
				if r == 1 {
					f |= FlagResolved
				} else {
					f |= FlagUnresolved
				}
				if im == 1 {
					f |= FlagImplicit
				} else if k != KindDiagnostic && k != KindUnknown {
					f |= FlagSupportsRemove
				}
				row[r][im] = f
			}
		}
		t[k] = row
	}
	return t
}()

// FlagsFor returns the precomputed flags for a dependency of kind k.
func FlagsFor(k Kind, resolved, implicit bool) Flags {
	row, ok := flagTable[k]
	if !ok {
		row = flagTable[KindUnknown]
	}
	return row[b2i(resolved)][b2i(implicit)]
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}
