package cwl

import (
	"fmt"
	"path"
	"strings"
)

// MappingLine is one "<output_id>,<entity_name>" pair written by the mapping step.
// EntityName is either a literal file name or an engine expression evaluated at run time.
type MappingLine struct {
	Step       string
	OutputID   string
	EntityName string
	Static     bool
}

func (l MappingLine) String() string {
	return l.OutputID + "," + l.EntityName
}

// GlobEntityName derives the produced file name from an output glob. It returns the
// trailing path component and true when the glob is a literal path; otherwise it
// returns false and the name must be read from the produced file at run time.
func GlobEntityName(glob string) (string, bool) {
	glob = strings.TrimSpace(glob)
	if glob == "" || strings.Contains(glob, "$(") || strings.Contains(glob, "${") {
		return "", false
	}

	if strings.ContainsAny(glob, "*?[{") {
		return "", false
	}

	name := path.Base(glob)
	if name == "." || name == "/" {
		return "", false
	}

	return name, true
}

// MappingLines returns the mapping pairs for every File output of every step,
// in step-name order then declaration order. The mapping step itself is skipped.
func MappingLines(doc *Document) ([]MappingLine, error) {
	var (
		lines       []MappingLine
		seenOutputs = make(map[string]string)
		seenNames   = make(map[string]string)
	)

	for _, name := range doc.StepNames() {
		if name == MappingStepName {
			continue
		}

		for _, output := range doc.Steps[name].Run.FileOutputs() {
			if previous, exists := seenOutputs[output.ID]; exists {
				return nil, fmt.Errorf("%w: %s declared by steps %s and %s", ErrDuplicateOutput, output.ID, previous, name)
			}

			seenOutputs[output.ID] = name

			line := MappingLine{Step: name, OutputID: output.ID}

			glob := ""
			if output.OutputBinding != nil {
				glob = output.OutputBinding.Glob
			}

			if entityName, static := GlobEntityName(glob); static {
				if previous, exists := seenNames[entityName]; exists {
					return nil, fmt.Errorf("%w: %s produced by outputs %s and %s", ErrDuplicateEntityName, entityName, previous, output.ID)
				}

				seenNames[entityName] = output.ID
				line.EntityName = entityName
				line.Static = true
			} else {
				line.EntityName = "$(inputs." + output.ID + ".basename)"
			}

			lines = append(lines, line)
		}
	}

	return lines, nil
}

// HasMappingStep reports whether the document already carries the mapping step.
func HasMappingStep(doc *Document) bool {
	_, exists := doc.Steps[MappingStepName]

	return exists
}

// InjectMappingStep returns a copy of doc with the synthetic mapping step appended.
// The mapping step consumes every File output of the other steps, so it runs last,
// and writes one line per output to map.txt. The input document is not modified.
func InjectMappingStep(doc *Document) (*Document, error) {
	out, err := doc.Clone()
	if err != nil {
		return nil, err
	}

	if HasMappingStep(out) {
		return out, nil
	}

	lines, err := MappingLines(out)
	if err != nil {
		return nil, err
	}

	in := make(map[string]any, len(lines))
	toolInputs := make(map[string]any, len(lines))
	script := []string{"touch " + MappingFileName}

	for _, line := range lines {
		in[line.OutputID] = line.Step + "/" + line.OutputID
		toolInputs[line.OutputID] = fileType
		script = append(script, fmt.Sprintf("echo \"%s\" >> %s", line.String(), MappingFileName))
	}

	out.Steps[MappingStepName] = &Step{
		In:  in,
		Out: []any{MappingOutputID},
		Run: &Tool{
			Class:       "CommandLineTool",
			BaseCommand: "sh",
			Arguments:   []any{"-c", strings.Join(script, "\n")},
			Inputs:      toolInputs,
			Outputs: []*ToolOutput{{
				ID:            MappingOutputID,
				Type:          fileType,
				OutputBinding: &OutputBinding{Glob: MappingFileName},
			}},
		},
	}

	out.Outputs = append(out.Outputs, &WorkflowOutput{
		ID:           MappingOutputID,
		Type:         fileType,
		OutputSource: MappingStepName + "/" + MappingOutputID,
	})

	out.Requirements = addRequirement(out.Requirements, "InlineJavascriptRequirement", map[string]any{})

	return out, nil
}
