package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const personSchema = `{
	"type": "object",
	"required": ["id"],
	"properties": {
		"id": {"type": "string", "minLength": 1},
		"tags": {"type": "array", "items": {"type": "string"}}
	}
}`

func TestCompile_RejectsBrokenSchema(t *testing.T) {
	_, err := Compile(`{"type": 12}`)
	assert.Error(t, err)
	assert.Panics(t, func() { MustCompile(`{`) })
}

func TestValidateBytes(t *testing.T) {
	s := MustCompile(personSchema)

	tests := []struct {
		name  string
		doc   string
		valid bool
		field string
	}{
		{"valid", `{"id": "a", "tags": ["x"]}`, true, ""},
		{"missing id", `{"tags": []}`, false, "(root)"},
		{"empty id", `{"id": ""}`, false, "id"},
		{"wrong item type", `{"id": "a", "tags": [1]}`, false, "tags.0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := s.ValidateBytes([]byte(tt.doc))
			require.NoError(t, err)
			assert.Equal(t, tt.valid, res.Valid)
			if tt.field != "" {
				assert.True(t, res.HasErrors(tt.field), "errors: %v", res.GetErrorMessages())
			}
		})
	}
}

func TestValidateBytes_NotJSON(t *testing.T) {
	_, err := MustCompile(personSchema).ValidateBytes([]byte("not json"))
	assert.Error(t, err)
}

func TestValidateInput_GetErrorsForField(t *testing.T) {
	res, err := MustCompile(personSchema).ValidateInput(map[string]interface{}{
		"id":   "a",
		"tags": []interface{}{1, "ok", true},
	})
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Len(t, res.GetErrorsForField("tags"), 2)
	assert.Len(t, res.GetErrorMessages(), 2)
}
