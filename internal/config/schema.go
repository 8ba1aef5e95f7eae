package config

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// fileSchema describes the shape of an operator-supplied JSON config file
// (as opposed to environment variables), so malformed deployment config is
// rejected with a human-readable error. Load does not read such a file;
// ValidateFile checks its bytes on its own.
const fileSchema = `{
  "type": "object",
  "properties": {
    "database_url": {"type": "string", "minLength": 1},
    "check_interval": {"type": "number", "minimum": 1},
    "aggregation_interval": {"type": "number", "minimum": 1},
    "max_workers": {"type": "integer", "minimum": 1},
    "max_browsers": {"type": "integer", "minimum": 1},
    "confidence_threshold": {"type": "number", "exclusiveMinimum": 0, "maximum": 1},
    "daily_add_limit": {"type": "integer", "minimum": 0},
    "admin_ids": {"type": "array", "items": {"type": "string"}}
  }
}`

// ValidateFile validates raw operator-supplied JSON config bytes against
// fileSchema, returning a joined, human-readable error listing every
// violation rather than failing on the first one.
func ValidateFile(raw []byte) error {
	schemaLoader := gojsonschema.NewStringLoader(fileSchema)
	docLoader := gojsonschema.NewBytesLoader(raw)

	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return fmt.Errorf("config: schema validation: %w", err)
	}
	if result.Valid() {
		return nil
	}

	msg := "config: invalid configuration file:"
	for _, e := range result.Errors() {
		msg += "\n  - " + e.String()
	}
	return fmt.Errorf("%s", msg)
}
