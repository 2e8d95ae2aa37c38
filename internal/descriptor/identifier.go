// Package descriptor models the world the engine builds against: the
// identifiers, described types, traits, and descriptor kinds (Model,
// Treatment, Function, Context, Data) that the design-source collaborator
// hands the engine.
package descriptor

import (
	"fmt"
	"regexp"
	"strings"
)

var versionPattern = regexp.MustCompile(`^\d+\.\d+\.\d+(?:-[0-9A-Za-z-.]+)?$`)

// Identifier is a hierarchical dotted path plus a semantic version. It is
// globally unique within a loaded world and keys descriptors, builders, and
// build records.
type Identifier struct {
	Path    string // e.g. "std/flow/Count" or "acme/pipeline/Render"
	Version string // e.g. "1.2.0"
}

// NewIdentifier validates and constructs an Identifier.
func NewIdentifier(path, version string) (Identifier, error) {
	if strings.TrimSpace(path) == "" {
		return Identifier{}, fmt.Errorf("identifier path cannot be empty")
	}
	if !versionPattern.MatchString(version) {
		return Identifier{}, fmt.Errorf("identifier %q: invalid version %q", path, version)
	}
	return Identifier{Path: path, Version: version}, nil
}

// String renders "path@version" for logs and error subjects.
func (id Identifier) String() string {
	return fmt.Sprintf("%s@%s", id.Path, id.Version)
}

// Key is the canonical registry key: path and version kept distinct so
// lookups can key on either, but registries use this for uniqueness.
func (id Identifier) Key() string {
	return id.Path + "@" + id.Version
}

// IsZero reports whether this is the zero Identifier.
func (id Identifier) IsZero() bool {
	return id.Path == "" && id.Version == ""
}
