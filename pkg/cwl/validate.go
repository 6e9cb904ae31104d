package cwl

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

//go:embed schema/workflow.schema.json
var workflowSchema string

var schemaLoader = gojsonschema.NewStringLoader(workflowSchema)

// Validate checks a raw workflow document (YAML or JSON) against the workflow schema.
func Validate(raw []byte) error {
	var generic any

	err := yaml.Unmarshal(raw, &generic)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	if generic == nil {
		return fmt.Errorf("%w: empty document", ErrInvalidDocument)
	}

	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewGoLoader(generic))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	if !result.Valid() {
		reasons := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			reasons = append(reasons, desc.String())
		}

		return fmt.Errorf("%w: %s", ErrInvalidDocument, strings.Join(reasons, "; "))
	}

	return nil
}
