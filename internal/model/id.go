package model

import "strings"

// DependencyID identifies a dependency within one target: the provider type
// plus the model id. Both parts compare case-insensitively.
type DependencyID struct {
	ProviderType string
	ModelID      string
}

// Equal compares two ids case-insensitively.
func (id DependencyID) Equal(o DependencyID) bool {
	return strings.EqualFold(id.ProviderType, o.ProviderType) &&
		strings.EqualFold(id.ModelID, o.ModelID)
}

// Key returns the normalized map key for id.
func (id DependencyID) Key() string {
	return strings.ToLower(id.ProviderType) + "\x00" + strings.ToLower(id.ModelID)
}

func (id DependencyID) String() string {
	return id.ProviderType + ":" + id.ModelID
}
