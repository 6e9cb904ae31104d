package provenance

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/dukex/provtrack/pkg/cwl"
	"github.com/dukex/provtrack/pkg/models"
	"github.com/dukex/provtrack/pkg/reana"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func sequentialIDs() func() string {
	next := 0

	return func() string {
		next++

		return "id-" + strconv.Itoa(next)
	}
}

func readSpec(t *testing.T, name string) []byte {
	t.Helper()

	content, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)

	return content
}

func loadSpec(t *testing.T, name string) *cwl.Document {
	t.Helper()

	doc, err := cwl.Parse(readSpec(t, name))
	require.NoError(t, err)

	return doc
}

func finishedExecution() *models.Execution {
	end := baseTime.Add(10 * time.Minute)

	return &models.Execution{
		ID:         "exec-1",
		SpecID:     "spec-1",
		RemoteID:   "remote-1",
		RemoteName: "two-step",
		RunNumber:  1,
		StartTime:  baseTime,
		EndTime:    &end,
		Status:     models.ExecutionStatusFinished,
		Username:   "alice",
		Group:      "lab",
	}
}

func closedStep(name string, from, to time.Duration) *models.ExecutionStep {
	end := baseTime.Add(to)

	return &models.ExecutionStep{
		ID:          "step-" + name,
		ExecutionID: "exec-1",
		Name:        name,
		Status:      models.StepStatusFinished,
		StartTime:   baseTime.Add(from),
		EndTime:     &end,
	}
}

func twoStepArtifacts() []reana.Artifact {
	return []reana.Artifact{
		{Name: "workflow.json", Size: "1 KiB"},
		{Name: "inputs.json"},
		{Name: "cwl/a1/out.txt", Size: "12 Bytes"},
		{Name: "cwl/b2/result.csv"},
		{Name: "outputs/result.csv"},
		{Name: "outputs/map.txt"},
	}
}

func twoStepSource(t *testing.T) Source {
	t.Helper()

	table, err := ParseMappingTable([]byte("out,out.txt\nresult,result.csv\n"))
	require.NoError(t, err)

	return Source{
		Execution: finishedExecution(),
		Identity:  models.Identity{Username: "alice", Group: "lab"},
		Spec:      loadSpec(t, "two_step.yaml"),
		Steps: []*models.ExecutionStep{
			closedStep("stepA", time.Minute, 2*time.Minute),
			closedStep("stepB", 3*time.Minute, 5*time.Minute),
		},
		Artifacts: twoStepArtifacts(),
		Mapping:   table,
		Inputs:    RuntimeInputs{},
	}
}

func entityNamed(prov *models.Provenance, name string) *models.Entity {
	for _, entity := range prov.Entities {
		if entity.Name == name {
			return entity
		}
	}

	return nil
}

func activityNamed(prov *models.Provenance, name string) *models.Activity {
	for _, activity := range prov.Activities {
		if activity.Name == name {
			return activity
		}
	}

	return nil
}
