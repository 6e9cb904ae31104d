package cwl

import (
	"fmt"
	"strings"
)

// Source is a parsed step input wiring expression. Step is empty for a direct
// reference to a workflow input or mapping-table key.
type Source struct {
	Step   string
	Output string
}

// Qualified reports whether the source references another step's output.
func (s Source) Qualified() bool {
	return s.Step != ""
}

func (s Source) String() string {
	if s.Qualified() {
		return s.Step + "/" + s.Output
	}

	return s.Output
}

// ParseSource interprets a step input value. Accepted forms are a plain name,
// "step/output", a single-element list of either, or a mapping with a "source" key.
// Multi-source lists and deeper qualifiers are rejected with ErrUnsupportedSource.
func ParseSource(value any) (Source, error) {
	switch typed := value.(type) {
	case string:
		parts := strings.Split(strings.TrimPrefix(typed, "#"), "/")
		for _, part := range parts {
			if part == "" {
				return Source{}, fmt.Errorf("%w: %q", ErrUnsupportedSource, typed)
			}
		}

		switch len(parts) {
		case 1:
			return Source{Output: parts[0]}, nil
		case 2:
			return Source{Step: parts[0], Output: parts[1]}, nil
		default:
			return Source{}, fmt.Errorf("%w: %q has more than one qualifier", ErrUnsupportedSource, typed)
		}
	case []any:
		if len(typed) != 1 {
			return Source{}, fmt.Errorf("%w: %d sources", ErrUnsupportedSource, len(typed))
		}

		return ParseSource(typed[0])
	case map[string]any:
		source, ok := typed["source"]
		if !ok {
			return Source{}, fmt.Errorf("%w: mapping without source", ErrUnsupportedSource)
		}

		return ParseSource(source)
	default:
		return Source{}, fmt.Errorf("%w: %T", ErrUnsupportedSource, value)
	}
}
