package cwl_test

import (
	"testing"

	"github.com/dukex/provtrack/pkg/cwl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSource(t *testing.T) {
	tests := []struct {
		name      string
		value     any
		want      cwl.Source
		qualified bool
		wantErr   bool
	}{
		{name: "direct", value: "message", want: cwl.Source{Output: "message"}},
		{name: "qualified", value: "stepA/out", want: cwl.Source{Step: "stepA", Output: "out"}, qualified: true},
		{name: "hash prefixed", value: "#stepA/out", want: cwl.Source{Step: "stepA", Output: "out"}, qualified: true},
		{name: "single element list", value: []any{"stepA/out"}, want: cwl.Source{Step: "stepA", Output: "out"}, qualified: true},
		{name: "source mapping", value: map[string]any{"source": "x"}, want: cwl.Source{Output: "x"}},
		{name: "multiple sources", value: []any{"a", "b"}, wantErr: true},
		{name: "nested qualifier", value: "main/stepA/out", wantErr: true},
		{name: "empty part", value: "stepA/", wantErr: true},
		{name: "mapping without source", value: map[string]any{"default": 1}, wantErr: true},
		{name: "number", value: 3, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := cwl.ParseSource(tt.value)
			if tt.wantErr {
				assert.ErrorIs(t, err, cwl.ErrUnsupportedSource)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.qualified, got.Qualified())
		})
	}
}
