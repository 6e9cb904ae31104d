package provenance

import (
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/dukex/provtrack/pkg/cwl"
	"github.com/dukex/provtrack/pkg/models"
	"github.com/dukex/provtrack/pkg/reana"
)

const (
	// WorkflowEntityName is the node key of the workflow specification entity.
	WorkflowEntityName = "workflow"

	// SoftwareAgentName is the software agent every execution is attributed to.
	SoftwareAgentName = "software executing experiments"
)

// Source is everything capture needs to reconstruct one execution's graph.
type Source struct {
	Execution *models.Execution
	Identity  models.Identity
	Spec      *cwl.Document
	Steps     []*models.ExecutionStep
	Artifacts []reana.Artifact
	Mapping   *MappingTable
	Inputs    RuntimeInputs
}

// assembler turns a Source into a Provenance aggregate. It never touches storage.
type assembler struct {
	layout Layout
	newID  func() string

	src        Source
	names      nameRegistry
	prov       *models.Provenance
	byKey      map[LogicalName]*models.Entity
	byFileName map[string]*models.Entity
}

// Assemble reconstructs entities, activities, agents and edges for src.
// Any unresolvable input or output fails the whole graph.
func Assemble(src Source, layout Layout, newID func() string) (*models.Provenance, error) {
	a := &assembler{
		layout:     layout,
		newID:      newID,
		src:        src,
		names:      make(nameRegistry),
		byKey:      make(map[LogicalName]*models.Entity),
		byFileName: make(map[string]*models.Entity),
		prov:       &models.Provenance{Execution: src.Execution},
	}

	if a.src.Mapping == nil {
		a.src.Mapping, _ = NewMappingTable()
	}

	err := a.entities()
	if err != nil {
		return nil, err
	}

	err = a.activities()
	if err != nil {
		return nil, err
	}

	a.agents()

	return a.prov, nil
}

func (a *assembler) entities() error {
	buckets := a.layout.Partition(a.src.Artifacts, a.src.Mapping)

	workflow := reana.Artifact{Name: a.layout.SpecDescriptor}
	if buckets.Workflow != nil {
		workflow = *buckets.Workflow
	}

	_, err := a.addEntity(models.EntityTypeWorkflow, workflow, WorkflowEntityName)
	if err != nil {
		return err
	}

	for _, artifact := range buckets.Intermediate {
		key, _ := a.src.Mapping.KeyFor(baseName(artifact.Name))

		entity, err := a.addEntity(models.EntityTypeIntermediateResult, artifact, string(key), qualifiedName(artifact.Name))
		if err != nil {
			return err
		}

		if _, exists := a.byKey[key]; !exists {
			a.byKey[key] = entity
		}
	}

	for _, artifact := range buckets.Final {
		_, err := a.addEntity(models.EntityTypeFinalResult, artifact, baseName(artifact.Name), qualifiedName(artifact.Name))
		if err != nil {
			return err
		}
	}

	for _, artifact := range buckets.External {
		entity, err := a.addEntity(models.EntityTypeExternalInput, artifact, baseName(artifact.Name), qualifiedName(artifact.Name))
		if err != nil {
			return err
		}

		if _, exists := a.byFileName[baseName(artifact.Name)]; !exists {
			a.byFileName[baseName(artifact.Name)] = entity
		}
	}

	return nil
}

func (a *assembler) addEntity(entityType models.EntityType, artifact reana.Artifact, names ...string) (*models.Entity, error) {
	name, err := a.names.claim(names...)
	if err != nil {
		return nil, err
	}

	entity := &models.Entity{
		ID:           a.newID(),
		ExecutionID:  a.src.Execution.ID,
		Type:         entityType,
		Path:         artifact.Name,
		Name:         name,
		Size:         artifact.Size,
		LastModified: artifact.LastModified,
	}

	a.prov.Entities = append(a.prov.Entities, entity)

	return entity, nil
}

func (a *assembler) activities() error {
	execution := a.src.Execution

	executionEnd := execution.StartTime
	if execution.EndTime != nil {
		executionEnd = *execution.EndTime
	}

	for _, stepName := range a.src.Spec.StepNames() {
		if stepName == cwl.MappingStepName {
			continue
		}

		step := a.src.Spec.Steps[stepName]
		start, end := a.stepWindow(stepName, execution.StartTime, executionEnd)

		activity := &models.Activity{
			ID:          a.newID(),
			ExecutionID: execution.ID,
			Type:        models.ActivityTypeStepExecution,
			Name:        NormalizeName(stepName),
			StartTime:   start,
			EndTime:     end,
			Used:        []string{},
			Generated:   []string{},
		}

		for _, input := range step.Run.FileInputs() {
			entity, err := a.resolveInput(stepName, step, input)
			if err != nil {
				return err
			}

			if !slices.Contains(activity.Used, entity.ID) {
				activity.Used = append(activity.Used, entity.ID)
			}
		}

		for _, output := range step.Run.FileOutputs() {
			entity, ok := a.byKey[LogicalName(NormalizeName(output.ID))]
			if !ok {
				return fmt.Errorf("%w: step %s output %s has no mapped artifact", ErrResolution, stepName, output.ID)
			}

			if !slices.Contains(activity.Generated, entity.ID) {
				activity.Generated = append(activity.Generated, entity.ID)
			}
		}

		a.prov.Activities = append(a.prov.Activities, activity)
	}

	workflowActivity := &models.Activity{
		ID:          a.newID(),
		ExecutionID: execution.ID,
		Type:        models.ActivityTypeWorkflowExecution,
		Name:        NormalizeName(execution.RemoteName + "_" + strconv.Itoa(execution.RunNumber)),
		StartTime:   execution.StartTime,
		EndTime:     executionEnd,
		Used:        []string{},
		Generated:   []string{},
	}

	for _, entity := range a.prov.Entities {
		if entity.Type == models.EntityTypeFinalResult {
			workflowActivity.Generated = append(workflowActivity.Generated, entity.ID)
		}
	}

	a.prov.Activities = append(a.prov.Activities, workflowActivity)

	return nil
}

// resolveInput finds the entity a step consumed through one File input. A direct
// reference to a workflow input resolves to the external artifact named by the
// runtime value; any other reference resolves through the mapping table.
func (a *assembler) resolveInput(stepName string, step *cwl.Step, input string) (*models.Entity, error) {
	value, wired := step.In[input]
	if !wired {
		return nil, fmt.Errorf("%w: step %s input %s is not wired", ErrResolution, stepName, input)
	}

	source, err := cwl.ParseSource(value)
	if err != nil {
		return nil, fmt.Errorf("%w: step %s input %s: %w", ErrResolution, stepName, input, err)
	}

	if !source.Qualified() {
		if workflowInput := a.src.Spec.Input(source.Output); workflowInput != nil {
			filePath, ok := a.src.Inputs.FilePath(workflowInput.ID)
			if !ok {
				return nil, fmt.Errorf("%w: step %s input %s: no runtime value for %s", ErrResolution, stepName, input, workflowInput.ID)
			}

			entity, ok := a.byFileName[baseName(filePath)]
			if !ok {
				return nil, fmt.Errorf("%w: step %s input %s: no external artifact %s", ErrResolution, stepName, input, filePath)
			}

			return entity, nil
		}
	} else if _, exists := a.src.Spec.Steps[source.Step]; !exists {
		return nil, fmt.Errorf("%w: step %s input %s references unknown step %s", ErrResolution, stepName, input, source.Step)
	}

	key, err := ParseLogicalName(source.Output)
	if err != nil {
		return nil, fmt.Errorf("%w: step %s input %s: %w", ErrResolution, stepName, input, err)
	}

	entity, ok := a.byKey[key]
	if !ok {
		return nil, fmt.Errorf("%w: step %s input %s: no mapping entry for %s", ErrResolution, stepName, input, source)
	}

	return entity, nil
}

// stepWindow returns the observed start and end of a step. Repeated observations
// are merged; a step that was never observed spans the whole execution.
func (a *assembler) stepWindow(stepName string, fallbackStart, fallbackEnd time.Time) (time.Time, time.Time) {
	var (
		start, end time.Time
		observed   bool
	)

	for _, step := range a.src.Steps {
		if NormalizeName(step.Name) != NormalizeName(stepName) {
			continue
		}

		stepEnd := fallbackEnd
		if step.EndTime != nil {
			stepEnd = *step.EndTime
		}

		if !observed || step.StartTime.Before(start) {
			start = step.StartTime
		}

		if !observed || stepEnd.After(end) {
			end = stepEnd
		}

		observed = true
	}

	if !observed {
		return fallbackStart, fallbackEnd
	}

	return start, end
}

// agents attributes the run to the person who submitted it, or to the caller
// when the submitter is unknown.
func (a *assembler) agents() {
	person := a.src.Execution.Username
	if person == "" {
		person = a.src.Identity.Username
	}

	a.prov.Agents = []*models.Agent{
		{
			ID:          a.newID(),
			ExecutionID: a.src.Execution.ID,
			Type:        models.AgentTypePerson,
			Name:        NormalizeName(person),
		},
		{
			ID:          a.newID(),
			ExecutionID: a.src.Execution.ID,
			Type:        models.AgentTypeSoftware,
			Name:        SoftwareAgentName,
		},
	}
}
