package shadowstore

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// updateSchemaJSON constrains update requests to flat desired/reported
// objects with integer channel values.
const updateSchemaJSON = `{
	"type": "object",
	"properties": {
		"state": {
			"type": "object",
			"minProperties": 1,
			"properties": {
				"desired": {
					"type": "object",
					"additionalProperties": {"type": "integer"}
				},
				"reported": {
					"type": "object",
					"additionalProperties": {"type": "integer"}
				}
			},
			"additionalProperties": false
		},
		"clientToken": {"type": "string"}
	},
	"required": ["state"],
	"additionalProperties": false
}`

var updateSchema *gojsonschema.Schema

func init() {
	var err error
	updateSchema, err = gojsonschema.NewSchema(gojsonschema.NewStringLoader(updateSchemaJSON))
	if err != nil {
		panic(err)
	}
}

// ValidateUpdate checks an update request payload against the update
// schema. It returns nil for well-formed requests.
func ValidateUpdate(payload []byte) error {
	result, err := updateSchema.Validate(gojsonschema.NewBytesLoader(payload))
	if err != nil {
		return fmt.Errorf("invalid json data: %w", err)
	}
	if !result.Valid() {
		reasons := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			reasons = append(reasons, e.String())
		}
		return fmt.Errorf("invalid update request: %s", strings.Join(reasons, "; "))
	}
	return nil
}
