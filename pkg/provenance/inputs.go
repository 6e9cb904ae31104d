package provenance

import (
	"fmt"

	"github.com/tidwall/gjson"
)

// RuntimeInputs are the input values an execution actually ran with.
type RuntimeInputs map[string]gjson.Result

// ParseRuntimeInputs reads the runtime inputs descriptor. Both a bare object and
// one wrapped in "parameters" are accepted; empty content yields no inputs.
func ParseRuntimeInputs(content []byte) (RuntimeInputs, error) {
	inputs := make(RuntimeInputs)

	if len(content) == 0 {
		return inputs, nil
	}

	if !gjson.ValidBytes(content) {
		return nil, fmt.Errorf("%w: runtime inputs are not valid JSON", ErrResolution)
	}

	root := gjson.ParseBytes(content)
	if parameters := root.Get("parameters"); parameters.IsObject() {
		root = parameters
	}

	root.ForEach(func(key, value gjson.Result) bool {
		inputs[key.String()] = value

		return true
	})

	return inputs, nil
}

// FilePath returns the path of a File-valued input.
func (r RuntimeInputs) FilePath(id string) (string, bool) {
	value, ok := r[id]
	if !ok {
		return "", false
	}

	if value.IsObject() {
		filePath := value.Get("path").String()
		if filePath == "" {
			filePath = value.Get("location").String()
		}

		return filePath, filePath != ""
	}

	if value.Type == gjson.String && value.String() != "" {
		return value.String(), true
	}

	return "", false
}
