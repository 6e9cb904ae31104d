package provenance

import (
	"fmt"
	"path"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/dukex/provtrack/pkg/reana"
)

// Layout locates artifacts in an execution workspace. Every field is a doublestar pattern.
type Layout struct {
	SpecDescriptor string
	Intermediates  string
	Outputs        string
	MappingFile    string
	RuntimeInputs  string
}

// DefaultLayout is the workspace layout of a CWL run on the execution service.
func DefaultLayout() Layout {
	return Layout{
		SpecDescriptor: "workflow.json",
		Intermediates:  "cwl/**",
		Outputs:        "outputs/**",
		MappingFile:    "outputs/map.txt",
		RuntimeInputs:  "inputs.json",
	}
}

// Validate checks every pattern.
func (l Layout) Validate() error {
	for _, pattern := range []string{l.SpecDescriptor, l.Intermediates, l.Outputs, l.MappingFile, l.RuntimeInputs} {
		if pattern == "" || !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("invalid layout pattern %q", pattern)
		}
	}

	return nil
}

func (l Layout) match(pattern, name string) bool {
	matched, err := doublestar.Match(pattern, name)

	return err == nil && matched
}

// Buckets is an artifact listing partitioned by role.
type Buckets struct {
	Workflow     *reana.Artifact
	Intermediate []reana.Artifact
	Final        []reana.Artifact
	External     []reana.Artifact
}

// Partition sorts artifacts into buckets. Intermediates are files under the
// intermediates area whose name was recorded by the mapping step; final outputs
// are files under the outputs area; everything else is external. The mapping
// file is dropped wherever it appears.
func (l Layout) Partition(artifacts []reana.Artifact, table *MappingTable) Buckets {
	sorted := append([]reana.Artifact(nil), artifacts...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	var buckets Buckets

	for i := range sorted {
		artifact := sorted[i]

		switch {
		case l.isMappingFile(artifact.Name):
			continue
		case buckets.Workflow == nil && l.match(l.SpecDescriptor, artifact.Name):
			buckets.Workflow = &artifact
		case l.match(l.Intermediates, artifact.Name) && l.isMapped(artifact.Name, table):
			buckets.Intermediate = append(buckets.Intermediate, artifact)
		case l.match(l.Outputs, artifact.Name):
			buckets.Final = append(buckets.Final, artifact)
		default:
			buckets.External = append(buckets.External, artifact)
		}
	}

	return buckets
}

// isMappingFile also catches the copy left in the mapping step's working directory.
func (l Layout) isMappingFile(name string) bool {
	return l.match(l.MappingFile, name) || path.Base(name) == path.Base(l.MappingFile)
}

func (l Layout) isMapped(name string, table *MappingTable) bool {
	if table == nil {
		return false
	}

	_, ok := table.KeyFor(NormalizeName(path.Base(name)))

	return ok
}
