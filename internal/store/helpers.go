package store

import (
	"encoding/json"
	"strings"

	"github.com/jward/depsnap/internal/framework"
)

// marshalProperties converts a property bag to JSON text for storage.
func marshalProperties(props map[string]string) string {
	if len(props) == 0 {
		return "{}"
	}
	b, _ := json.Marshal(props)
	return string(b)
}

// unmarshalProperties converts JSON text back to a property bag. Corrupt
// text yields an empty bag.
func unmarshalProperties(s string) map[string]string {
	props := map[string]string{}
	if s == "" || s == "null" {
		return props
	}
	_ = json.Unmarshal([]byte(s), &props)
	return props
}

// targetFramework rebuilds a target from its stored names.
func targetFramework(full, short string) framework.TargetFramework {
	return framework.TargetFramework{FullName: strings.TrimSpace(full), ShortName: strings.TrimSpace(short)}
}
