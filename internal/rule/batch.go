package rule

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// Batch is one recorded update for a project: per-target rule changes plus
// an optional target set. An empty Target applies Changes to the active
// target.
type Batch struct {
	Project      string             `json:"project" yaml:"project"`
	Target       string             `json:"target,omitempty" yaml:"target,omitempty"`
	Targets      []string           `json:"targets,omitempty" yaml:"targets,omitempty"`
	ActiveTarget string             `json:"active_target,omitempty" yaml:"active_target,omitempty"`
	Changes      Changes            `json:"changes,omitempty" yaml:"changes,omitempty"`
	PerTarget    map[string]Changes `json:"per_target,omitempty" yaml:"per_target,omitempty"`
}

// File is the on-disk layout of a batch file.
type File struct {
	Batches []Batch `json:"batches" yaml:"batches"`
}

// DecodeBatches reads a batch file in the given format ("json" or "yaml").
// Changes with no recorded difference get one computed from Before/After.
func DecodeBatches(r io.Reader, format string) ([]Batch, error) {
	var f File
	switch strings.ToLower(format) {
	case "json":
		if err := json.NewDecoder(r).Decode(&f); err != nil {
			return nil, fmt.Errorf("rule: decoding json batches: %w", err)
		}
	case "yaml", "yml":
		if err := yaml.NewDecoder(r).Decode(&f); err != nil {
			if err == io.EOF {
				return nil, nil
			}
			return nil, fmt.Errorf("rule: decoding yaml batches: %w", err)
		}
	default:
		return nil, fmt.Errorf("rule: unknown batch format %q", format)
	}

	for i := range f.Batches {
		b := &f.Batches[i]
		fillDifferences(b.Changes)
		for _, c := range b.PerTarget {
			fillDifferences(c)
		}
	}
	return f.Batches, nil
}

func fillDifferences(c Changes) {
	for name, ch := range c {
		if !ch.Difference.AnyChanges() {
			ch.Difference = Diff(ch.Before, ch.After)
			c[name] = ch
		}
	}
}

// FormatForPath picks a batch format from a file extension.
func FormatForPath(path string) string {
	lower := strings.ToLower(path)
	if strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml") {
		return "yaml"
	}
	return "json"
}
