package cwl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dukex/provtrack/pkg/models"
	"github.com/tidwall/gjson"
)

// PlaceholderKind tells where a placeholder input gets its data from.
type PlaceholderKind string

const (
	PlaceholderEntity   PlaceholderKind = "entity"
	PlaceholderPlatform PlaceholderKind = "platform"
)

// Resolver looks up placeholder references. Implementations return ErrNotFound
// (possibly wrapped) when the reference does not exist.
type Resolver interface {
	Entity(ctx context.Context, id string) (*models.Entity, error)
	Platform(ctx context.Context, url string) (json.RawMessage, error)
}

// NeededEntity is data that must be staged into the new execution's workspace
// under FileName before it starts.
type NeededEntity struct {
	InputID  string
	Kind     PlaceholderKind
	Entity   *models.Entity  // set for PlaceholderEntity
	Source   string          // platform URL, set for PlaceholderPlatform
	Data     json.RawMessage // platform metadata, set for PlaceholderPlatform
	FileName string
}

// ResolvePlaceholders resolves every valueFromEntity / valueFromPlatform marker of
// the workflow inputs. On success it returns a rewritten copy without the markers
// and the data to stage. If any reference cannot be resolved it returns the
// original document, an empty list and an error wrapping ErrUnresolvablePlaceholder.
func ResolvePlaceholders(ctx context.Context, doc *Document, resolver Resolver) (*Document, []NeededEntity, error) {
	out, err := doc.Clone()
	if err != nil {
		return doc, []NeededEntity{}, err
	}

	needed := make([]NeededEntity, 0)

	for _, input := range out.Inputs {
		switch {
		case input.ValueFromEntity != "":
			id := unwrapReference(input.ValueFromEntity)

			entity, err := resolver.Entity(ctx, id)
			if err != nil {
				return doc, []NeededEntity{}, placeholderError(input.ID, id, err)
			}

			needed = append(needed, NeededEntity{
				InputID:  input.ID,
				Kind:     PlaceholderEntity,
				Entity:   entity,
				FileName: entity.Name,
			})

			input.ValueFromEntity = ""
		case input.ValueFromPlatform != "":
			url := unwrapReference(input.ValueFromPlatform)

			data, err := resolver.Platform(ctx, url)
			if err != nil {
				return doc, []NeededEntity{}, placeholderError(input.ID, url, err)
			}

			fileName := gjson.GetBytes(data, "name").String()
			if fileName == "" {
				fileName = input.ID
			}

			needed = append(needed, NeededEntity{
				InputID:  input.ID,
				Kind:     PlaceholderPlatform,
				Source:   url,
				Data:     data,
				FileName: strings.ReplaceAll(fileName, "/", "_"),
			})

			input.ValueFromPlatform = ""
			stageInput(out, input.ID)
		}
	}

	return out, needed, nil
}

func placeholderError(inputID, reference string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return &PlaceholderError{
			InputID:   inputID,
			Reference: reference,
			Err:       fmt.Errorf("%w: %w", ErrUnresolvablePlaceholder, err),
		}
	}

	return fmt.Errorf("failed to resolve placeholder for input %s: %w", inputID, err)
}

// stageInput adds an InitialWorkDirRequirement listing the input to every step
// that consumes it directly.
func stageInput(doc *Document, inputID string) {
	for _, name := range doc.StepNames() {
		step := doc.Steps[name]

		for _, value := range step.In {
			source, err := ParseSource(value)
			if err != nil || source.Qualified() || source.Output != inputID {
				continue
			}

			step.Requirements = addRequirement(step.Requirements, "InitialWorkDirRequirement", map[string]any{
				"listing": []any{"$(inputs." + inputID + ")"},
			})

			break
		}
	}
}

func unwrapReference(value string) string {
	value = strings.TrimSpace(value)
	value = strings.TrimPrefix(value, "{")
	value = strings.TrimSuffix(value, "}")

	return strings.TrimSpace(value)
}
