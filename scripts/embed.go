// Package scripts holds the scripted rule handlers built into the depsnap
// CLI.
package scripts

import (
	"embed"

	"github.com/jward/depsnap"
)

// FS holds handlers/<ProviderType>.risor.
//
//go:embed handlers/*.risor
var FS embed.FS

// ToolDependency is the provider type of CLI tool references.
const ToolDependency = "ToolDependency"

// Roots are the tree provider roots of the handlers in FS.
var Roots = []depsnap.ProviderRoot{
	{ProviderType: ToolDependency, Caption: "Tools", Icon: "Tool"},
}
