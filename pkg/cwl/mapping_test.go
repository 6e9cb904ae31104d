package cwl_test

import (
	"fmt"
	"testing"

	"github.com/dukex/provtrack/pkg/cwl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGlobEntityName(t *testing.T) {
	tests := []struct {
		glob   string
		name   string
		static bool
	}{
		{glob: "out.txt", name: "out.txt", static: true},
		{glob: "results/out.txt", name: "out.txt", static: true},
		{glob: "*.txt", static: false},
		{glob: "out-??.csv", static: false},
		{glob: "$(inputs.outfile)", static: false},
		{glob: "", static: false},
	}

	for _, tt := range tests {
		t.Run(tt.glob, func(t *testing.T) {
			name, static := cwl.GlobEntityName(tt.glob)
			assert.Equal(t, tt.static, static)
			assert.Equal(t, tt.name, name)
		})
	}
}

func TestMappingLines(t *testing.T) {
	lines, err := cwl.MappingLines(parseFixture(t, "two_step.yaml"))
	require.NoError(t, err)

	assert.Equal(t, []cwl.MappingLine{
		{Step: "stepA", OutputID: "out", EntityName: "$(inputs.out.basename)"},
		{Step: "stepB", OutputID: "result", EntityName: "result.csv", Static: true},
	}, lines)
}

func TestInjectMappingStep(t *testing.T) {
	doc := parseFixture(t, "two_step.yaml")

	out, err := cwl.InjectMappingStep(doc)
	require.NoError(t, err)

	assert.False(t, cwl.HasMappingStep(doc), "input document must not be modified")
	require.True(t, cwl.HasMappingStep(out))

	step := out.Steps[cwl.MappingStepName]
	assert.Equal(t, map[string]any{"out": "stepA/out", "result": "stepB/result"}, step.In)
	assert.Equal(t, []any{cwl.MappingOutputID}, step.Out)
	assert.Equal(t, []string{"out", "result"}, step.Run.FileInputs())
	assert.Equal(t, "sh", step.Run.BaseCommand)
	require.Len(t, step.Run.Arguments, 2)
	assert.Equal(t, "-c", step.Run.Arguments[0])
	assert.Contains(t, step.Run.Arguments[1], `echo "out,$(inputs.out.basename)" >> map.txt`)
	assert.Contains(t, step.Run.Arguments[1], `echo "result,result.csv" >> map.txt`)
	require.Len(t, step.Run.Outputs, 1)
	assert.Equal(t, cwl.MappingFileName, step.Run.Outputs[0].OutputBinding.Glob)

	last := out.Outputs[len(out.Outputs)-1]
	assert.Equal(t, cwl.MappingOutputID, last.ID)
	assert.Equal(t, "map/mapping", last.OutputSource)

	requirements, ok := out.Requirements.(map[string]any)
	require.True(t, ok)
	assert.Contains(t, requirements, "InlineJavascriptRequirement")
}

func TestInjectMappingStep_ListRequirements(t *testing.T) {
	doc := parseFixture(t, "two_step.yaml")
	doc.Requirements = []any{map[string]any{"class": "ShellCommandRequirement"}}

	out, err := cwl.InjectMappingStep(doc)
	require.NoError(t, err)

	requirements, ok := out.Requirements.([]any)
	require.True(t, ok)
	require.Len(t, requirements, 2)
	assert.Equal(t, "InlineJavascriptRequirement", requirements[1].(map[string]any)["class"])
}

func TestInjectMappingStep_Idempotent(t *testing.T) {
	once, err := cwl.InjectMappingStep(parseFixture(t, "two_step.yaml"))
	require.NoError(t, err)

	twice, err := cwl.InjectMappingStep(once)
	require.NoError(t, err)

	first, err := once.Marshal()
	require.NoError(t, err)
	second, err := twice.Marshal()
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
	assert.Len(t, twice.Outputs, len(once.Outputs))
}

func TestInjectMappingStep_SkipsStepsWithoutFiles(t *testing.T) {
	doc := parseFixture(t, "two_step.yaml")
	doc.Steps["log"] = &cwl.Step{
		In:  map[string]any{"message": "message"},
		Out: []any{"line"},
		Run: &cwl.Tool{
			Inputs:  map[string]any{"message": "string"},
			Outputs: []*cwl.ToolOutput{{ID: "line", Type: "string"}},
		},
	}

	out, err := cwl.InjectMappingStep(doc)
	require.NoError(t, err)

	assert.NotContains(t, out.Steps[cwl.MappingStepName].In, "line")
}

func TestInjectMappingStep_Collisions(t *testing.T) {
	fileStep := func(output, glob string) *cwl.Step {
		return &cwl.Step{
			In:  map[string]any{},
			Out: []any{output},
			Run: &cwl.Tool{
				Inputs: map[string]any{},
				Outputs: []*cwl.ToolOutput{{
					ID:            output,
					Type:          "File",
					OutputBinding: &cwl.OutputBinding{Glob: glob},
				}},
			},
		}
	}

	t.Run("same output id", func(t *testing.T) {
		doc := &cwl.Document{Class: "Workflow", Steps: map[string]*cwl.Step{
			"a": fileStep("out", "a.txt"),
			"b": fileStep("out", "b.txt"),
		}}

		_, err := cwl.InjectMappingStep(doc)
		assert.ErrorIs(t, err, cwl.ErrDuplicateOutput)
	})

	t.Run("same produced file name", func(t *testing.T) {
		doc := &cwl.Document{Class: "Workflow", Steps: map[string]*cwl.Step{
			"a": fileStep("first", "a/out.txt"),
			"b": fileStep("second", "b/out.txt"),
		}}

		_, err := cwl.InjectMappingStep(doc)
		assert.ErrorIs(t, err, cwl.ErrDuplicateEntityName)
	})
}

func TestInjectMappingStep_OneLinePerFileOutput(t *testing.T) {
	for _, n := range []int{1, 3, 12} {
		t.Run(fmt.Sprintf("%d outputs", n), func(t *testing.T) {
			doc := &cwl.Document{Class: "Workflow", Steps: map[string]*cwl.Step{}}
			for i := range n {
				id := fmt.Sprintf("out%d", i)
				doc.Steps[fmt.Sprintf("step%02d", i)] = &cwl.Step{
					In:  map[string]any{},
					Out: []any{id},
					Run: &cwl.Tool{
						Inputs: map[string]any{},
						Outputs: []*cwl.ToolOutput{{
							ID:            id,
							Type:          "File",
							OutputBinding: &cwl.OutputBinding{Glob: id + ".dat"},
						}},
					},
				}
			}

			out, err := cwl.InjectMappingStep(doc)
			require.NoError(t, err)

			lines, err := cwl.MappingLines(out)
			require.NoError(t, err)
			require.Len(t, lines, n)

			seen := make(map[string]bool)
			for _, line := range lines {
				assert.False(t, seen[line.OutputID])
				seen[line.OutputID] = true
				assert.Equal(t, line.OutputID+".dat", line.EntityName)
			}

			assert.Len(t, out.Steps[cwl.MappingStepName].In, n)
		})
	}
}
