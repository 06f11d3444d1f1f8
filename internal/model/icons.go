package model

// Icon is a symbolic icon name. Rendering is left to the host.
type Icon string

// IconSet is the four icons a dependency node can show.
type IconSet struct {
	Icon                   Icon
	ExpandedIcon           Icon
	UnresolvedIcon         Icon
	UnresolvedExpandedIcon Icon
}

// For returns the icon pair for the given resolution state.
func (s IconSet) For(resolved bool) (icon, expanded Icon) {
	if resolved {
		return s.Icon, s.ExpandedIcon
	}
	return s.UnresolvedIcon, s.UnresolvedExpandedIcon
}

func iconSet(name string) IconSet {
	return IconSet{
		Icon:                   Icon(name),
		ExpandedIcon:           Icon(name),
		UnresolvedIcon:         Icon(name + "Warning"),
		UnresolvedExpandedIcon: Icon(name + "Warning"),
	}
}

func privateIconSet(name string) IconSet {
	s := iconSet(name + "Private")
	s.UnresolvedIcon = Icon(name + "Warning")
	s.UnresolvedExpandedIcon = Icon(name + "Warning")
	return s
}

// iconTable holds the icons for each kind indexed by implicit.
var iconTable = map[Kind][2]IconSet{
	KindUnknown:           {iconSet("Dependency"), iconSet("Dependency")},
	KindPackage:           {iconSet("NuGetPackage"), privateIconSet("NuGetPackage")},
	KindAssembly:          {iconSet("Reference"), privateIconSet("Reference")},
	KindProject:           {iconSet("Application"), privateIconSet("Application")},
	KindFramework:         {iconSet("Framework"), privateIconSet("Framework")},
	KindSdk:               {iconSet("Sdk"), privateIconSet("Sdk")},
	KindAnalyzer:          {iconSet("CodeInformation"), privateIconSet("CodeInformation")},
	KindCom:               {iconSet("Component"), privateIconSet("Component")},
	KindDiagnostic:        {iconSet("StatusWarning"), iconSet("StatusWarning")},
	KindFrameworkAssembly: {iconSet("Reference"), iconSet("Reference")},
	KindAnalyzerAssembly:  {iconSet("CodeInformation"), iconSet("CodeInformation")},
}

// IconsFor returns the shared icon set for kind k.
func IconsFor(k Kind, implicit bool) IconSet {
	row, ok := iconTable[k]
	if !ok {
		row = iconTable[KindUnknown]
	}
	return row[b2i(implicit)]
}
