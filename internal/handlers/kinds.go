package handlers

import (
	"path"
	"strings"

	"github.com/jward/depsnap/internal/model"
)

// Rule names reported by the build system.
const (
	AssemblyReferenceRule          = "AssemblyReference"
	ResolvedAssemblyReferenceRule  = "ResolvedAssemblyReference"
	ProjectReferenceRule           = "ProjectReference"
	ResolvedProjectReferenceRule   = "ResolvedProjectReference"
	FrameworkReferenceRule         = "FrameworkReference"
	ResolvedFrameworkReferenceRule = "ResolvedFrameworkReference"
	SdkReferenceRule               = "SdkReference"
	ResolvedSdkReferenceRule       = "ResolvedSdkReference"
	AnalyzerReferenceRule          = "AnalyzerReference"
	ResolvedAnalyzerReferenceRule  = "ResolvedAnalyzerReference"
	ComReferenceRule               = "COMReference"
	ResolvedComReferenceRule       = "ResolvedCOMReference"
	PackageReferenceRule           = "PackageReference"
	ResolvedPackageReferenceRule   = "ResolvedPackageReference"
)

// fileCaption is the file name of a path-like spec without its extension.
func fileCaption(spec string) string {
	base := path.Base(strings.ReplaceAll(spec, `\`, "/"))
	if ext := path.Ext(base); ext != "" && ext != base {
		base = strings.TrimSuffix(base, ext)
	}
	return base
}

func versionedCaption(name, version string) string {
	if version == "" {
		return name
	}
	return name + " (" + version + ")"
}

// NewAssemblyHandler handles plain assembly references.
func NewAssemblyHandler(env Env) *Base {
	return NewBase(env, model.AssemblyDependency, AssemblyReferenceRule, ResolvedAssemblyReferenceRule, func(it Item) model.Model {
		caption := it.OriginalItemSpec
		if it.Resolved {
			if name := it.Properties.Get("Name"); name != "" {
				caption = name
			} else {
				caption = fileCaption(it.ItemSpec)
			}
		} else if name, _, ok := strings.Cut(caption, ","); ok {
			// Strong names: "System.Xml, Version=4.0.0.0, Culture=neutral".
			caption = strings.TrimSpace(name)
		}
		return model.Model{
			Kind:           model.KindAssembly,
			Caption:        caption,
			Version:        it.Properties.Get("Version"),
			SchemaItemType: "Reference",
		}
	})
}

// NewFrameworkHandler handles shared framework references.
func NewFrameworkHandler(env Env) *Base {
	return NewBase(env, model.FrameworkDependency, FrameworkReferenceRule, ResolvedFrameworkReferenceRule, func(it Item) model.Model {
		return model.Model{
			Kind:           model.KindFramework,
			Caption:        it.OriginalItemSpec,
			Version:        it.Properties.Get("Version"),
			SchemaItemType: "FrameworkReference",
		}
	})
}

// NewSdkHandler handles SDK references.
func NewSdkHandler(env Env) *Base {
	return NewBase(env, model.SdkDependency, SdkReferenceRule, ResolvedSdkReferenceRule, func(it Item) model.Model {
		version := it.Properties.Get("Version")
		return model.Model{
			Kind:           model.KindSdk,
			Caption:        versionedCaption(it.OriginalItemSpec, version),
			Version:        version,
			SchemaItemType: "SdkReference",
		}
	})
}

// NewAnalyzerHandler handles analyzer assemblies.
func NewAnalyzerHandler(env Env) *Base {
	return NewBase(env, model.AnalyzerDependency, AnalyzerReferenceRule, ResolvedAnalyzerReferenceRule, func(it Item) model.Model {
		return model.Model{
			Kind:           model.KindAnalyzer,
			Caption:        fileCaption(it.OriginalItemSpec),
			SchemaItemType: "Analyzer",
		}
	})
}

// NewComHandler handles COM references.
func NewComHandler(env Env) *Base {
	return NewBase(env, model.ComDependency, ComReferenceRule, ResolvedComReferenceRule, func(it Item) model.Model {
		return model.Model{
			Kind:           model.KindCom,
			Caption:        fileCaption(it.OriginalItemSpec),
			SchemaItemType: "COMReference",
		}
	})
}

func projectModel(it Item) model.Model {
	p := it.Properties.Get("FullPath")
	if p == "" && it.Resolved {
		p = it.ItemSpec
	} else if p == "" {
		p = it.OriginalItemSpec
	}
	return model.Model{
		Kind:           model.KindProject,
		Caption:        fileCaption(it.OriginalItemSpec),
		Path:           p,
		SchemaItemType: "ProjectReference",
	}
}
