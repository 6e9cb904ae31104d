// Package cwl reads, validates and rewrites CWL workflow documents before they are
// submitted to the execution service.
package cwl

import (
	"encoding/json"
	"fmt"
	"reflect"
	"slices"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// MappingStepName is the synthetic step that writes the output mapping table.
	MappingStepName = "map"

	// MappingOutputID is the id of the mapping file output, on the step and on the workflow.
	MappingOutputID = "mapping"

	// MappingFileName is the file the mapping step writes.
	MappingFileName = "map.txt"

	fileType = "File"
)

// Document is a CWL workflow. Fields the rewrite does not touch are kept in Extra
// so that a parse/marshal round trip preserves them.
type Document struct {
	CWLVersion   string            `yaml:"cwlVersion,omitempty"`
	Class        string            `yaml:"class"`
	Requirements any               `yaml:"requirements,omitempty"`
	Inputs       []*WorkflowInput  `yaml:"inputs"`
	Outputs      []*WorkflowOutput `yaml:"outputs"`
	Steps        map[string]*Step  `yaml:"steps"`
	Extra        map[string]any    `yaml:",inline"`
}

// WorkflowInput is a workflow-level input parameter. ValueFromEntity and
// ValueFromPlatform are placeholders resolved before submission.
type WorkflowInput struct {
	ID                string         `yaml:"id"`
	Type              any            `yaml:"type,omitempty"`
	ValueFromEntity   string         `yaml:"valueFromEntity,omitempty"`
	ValueFromPlatform string         `yaml:"valueFromPlatform,omitempty"`
	Extra             map[string]any `yaml:",inline"`
}

// IsPlaceholder reports whether the input still carries a placeholder marker.
func (i *WorkflowInput) IsPlaceholder() bool {
	return i.ValueFromEntity != "" || i.ValueFromPlatform != ""
}

// IsFile reports whether the input is a (possibly optional) File.
func (i *WorkflowInput) IsFile() bool {
	return isFileType(i.Type)
}

// WorkflowOutput is a workflow-level output parameter.
type WorkflowOutput struct {
	ID           string         `yaml:"id"`
	Type         any            `yaml:"type,omitempty"`
	OutputSource any            `yaml:"outputSource,omitempty"`
	Extra        map[string]any `yaml:",inline"`
}

// Step is one step of the workflow.
type Step struct {
	In           map[string]any `yaml:"in"`
	Out          []any          `yaml:"out"`
	Run          *Tool          `yaml:"run"`
	Requirements any            `yaml:"requirements,omitempty"`
	Extra        map[string]any `yaml:",inline"`
}

// Tool is the inline process a step runs.
type Tool struct {
	Class       string         `yaml:"class,omitempty"`
	BaseCommand any            `yaml:"baseCommand,omitempty"`
	Arguments   []any          `yaml:"arguments,omitempty"`
	Inputs      any            `yaml:"inputs"`
	Outputs     []*ToolOutput  `yaml:"outputs"`
	Extra       map[string]any `yaml:",inline"`
}

// ToolOutput is an output parameter of a tool.
type ToolOutput struct {
	ID            string         `yaml:"id"`
	Type          any            `yaml:"type"`
	OutputBinding *OutputBinding `yaml:"outputBinding,omitempty"`
	Extra         map[string]any `yaml:",inline"`
}

// OutputBinding tells the engine how to collect an output.
type OutputBinding struct {
	Glob  string         `yaml:"glob,omitempty"`
	Extra map[string]any `yaml:",inline"`
}

// IsFile reports whether the output is a (possibly optional) File.
func (o *ToolOutput) IsFile() bool {
	return isFileType(o.Type)
}

// Parse decodes a workflow document from YAML or JSON.
func Parse(data []byte) (*Document, error) {
	var doc Document

	err := yaml.Unmarshal(data, &doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	if doc.Steps == nil {
		doc.Steps = make(map[string]*Step)
	}

	for name, step := range doc.Steps {
		if step == nil || step.Run == nil {
			return nil, fmt.Errorf("%w: step %s has no inline run", ErrInvalidDocument, name)
		}
	}

	return &doc, nil
}

// Marshal encodes the document as YAML.
func (d *Document) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal workflow document: %w", err)
	}

	return data, nil
}

// JSON encodes the document as JSON, the form the execution service accepts.
func (d *Document) JSON() ([]byte, error) {
	data, err := d.Marshal()
	if err != nil {
		return nil, err
	}

	var generic any

	err = yaml.Unmarshal(data, &generic)
	if err != nil {
		return nil, fmt.Errorf("failed to decode workflow document: %w", err)
	}

	return json.Marshal(generic)
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() (*Document, error) {
	data, err := d.Marshal()
	if err != nil {
		return nil, err
	}

	return Parse(data)
}

// StepNames returns the step names in a stable order.
func (d *Document) StepNames() []string {
	names := make([]string, 0, len(d.Steps))
	for name := range d.Steps {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Input returns the workflow input with the given id, or nil.
func (d *Document) Input(id string) *WorkflowInput {
	for _, input := range d.Inputs {
		if input.ID == id {
			return input
		}
	}

	return nil
}

// FileInputs returns the names of the tool inputs typed File, sorted.
// Both the map form (name: File | {type: File}) and the list form ([{id, type}]) are accepted.
func (t *Tool) FileInputs() []string {
	var names []string

	switch inputs := t.Inputs.(type) {
	case map[string]any:
		for name, value := range inputs {
			if isFileType(value) {
				names = append(names, name)
			}
		}
	case []any:
		for _, item := range inputs {
			fields, ok := item.(map[string]any)
			if !ok {
				continue
			}

			id, _ := fields["id"].(string)
			if id != "" && isFileType(fields["type"]) {
				names = append(names, id)
			}
		}
	}

	sort.Strings(names)

	return names
}

// FileOutputs returns the tool outputs typed File in declaration order.
func (t *Tool) FileOutputs() []*ToolOutput {
	var outputs []*ToolOutput

	for _, output := range t.Outputs {
		if output != nil && output.IsFile() {
			outputs = append(outputs, output)
		}
	}

	return outputs
}

func isFileType(value any) bool {
	switch typed := value.(type) {
	case string:
		return strings.TrimSuffix(typed, "?") == fileType
	case map[string]any:
		return isFileType(typed["type"])
	default:
		return false
	}
}

// addRequirement merges body into the requirement class on a requirements value
// that may be absent, in map form or in list form. Fields already declared are
// kept, and listings are extended.
func addRequirement(requirements any, class string, body map[string]any) any {
	switch typed := requirements.(type) {
	case map[string]any:
		existing, _ := typed[class].(map[string]any)
		typed[class] = mergeRequirement(existing, body)

		return typed
	case []any:
		for i, item := range typed {
			entry, ok := item.(map[string]any)
			if ok && entry["class"] == class {
				typed[i] = mergeRequirement(entry, body)

				return typed
			}
		}

		return append(typed, mergeRequirement(map[string]any{"class": class}, body))
	default:
		return map[string]any{class: mergeRequirement(nil, body)}
	}
}

func mergeRequirement(existing, body map[string]any) map[string]any {
	if existing == nil {
		existing = make(map[string]any, len(body))
	}

	for key, value := range body {
		current, set := existing[key]

		switch {
		case !set:
			existing[key] = value
		case key == "listing":
			existing[key] = appendListing(current, value)
		}
	}

	return existing
}

// appendListing concatenates two listings, skipping entries already present.
func appendListing(current, added any) []any {
	listing := asList(current)

	for _, item := range asList(added) {
		if !slices.ContainsFunc(listing, func(existing any) bool { return reflect.DeepEqual(existing, item) }) {
			listing = append(listing, item)
		}
	}

	return listing
}

func asList(value any) []any {
	switch typed := value.(type) {
	case nil:
		return nil
	case []any:
		return append([]any(nil), typed...)
	default:
		return []any{typed}
	}
}
