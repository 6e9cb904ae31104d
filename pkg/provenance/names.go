package provenance

import (
	"fmt"
	"path"
	"strings"
)

// NormalizeName replaces the reserved qualified-name separator so the result can
// be used as a graph node key.
func NormalizeName(name string) string {
	return strings.ReplaceAll(strings.TrimSpace(name), ":", "_")
}

// baseName is the normalized last path component of an artifact name.
func baseName(name string) string {
	return NormalizeName(path.Base(name))
}

// qualifiedName is the normalized full artifact path flattened to one component.
func qualifiedName(name string) string {
	return NormalizeName(strings.ReplaceAll(strings.Trim(name, "/"), "/", "_"))
}

type nameRegistry map[string]struct{}

// claim reserves the first free candidate.
func (r nameRegistry) claim(candidates ...string) (string, error) {
	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}

		if _, taken := r[candidate]; !taken {
			r[candidate] = struct{}{}

			return candidate, nil
		}
	}

	return "", fmt.Errorf("%w: %s", ErrNameCollision, strings.Join(candidates, ", "))
}
