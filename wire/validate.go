package wire

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	"github.com/kartikbazzad/bunstore/storage"
)

// commandSchema and bulkRequestSchema describe the required shape of a
// Command / BulkRequest envelope body, compiled once at package init.
// Document bodies are never schema-checked; this only gates the wire
// envelope's own shape before a payload is unmarshalled into
// Command/BulkRequest and dispatched.
var (
	commandSchema      *gojsonschema.Schema
	bulkRequestSchema   *gojsonschema.Schema
)

const commandSchemaJSON = `{
  "type": "object",
  "required": ["command", "collection"],
  "properties": {
    "command": {"type": "string", "enum": ["get", "set", "delete", "exists", "query"]},
    "collection": {"type": "string", "minLength": 1}
  }
}`

const bulkRequestSchemaJSON = `{
  "type": "object",
  "required": ["collection", "operations"],
  "properties": {
    "collection": {"type": "string", "minLength": 1},
    "stopOnError": {"type": "boolean"},
    "operations": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["type"],
        "properties": {
          "type": {"type": "string", "enum": ["insert", "update", "delete"]}
        }
      }
    }
  }
}`

func init() {
	var err error
	commandSchema, err = gojsonschema.NewSchema(gojsonschema.NewStringLoader(commandSchemaJSON))
	if err != nil {
		panic(fmt.Sprintf("wire: invalid command schema: %v", err))
	}
	bulkRequestSchema, err = gojsonschema.NewSchema(gojsonschema.NewStringLoader(bulkRequestSchemaJSON))
	if err != nil {
		panic(fmt.Sprintf("wire: invalid bulk request schema: %v", err))
	}
}

// ValidateCommand checks raw against the Command envelope shape before the
// caller unmarshals it into a Command.
func ValidateCommand(raw []byte) error {
	return validateAgainst(commandSchema, raw)
}

// ValidateBulkRequest checks raw against the BulkRequest envelope shape.
func ValidateBulkRequest(raw []byte) error {
	return validateAgainst(bulkRequestSchema, raw)
}

func validateAgainst(schema *gojsonschema.Schema, raw []byte) error {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return storage.ErrParse(fmt.Sprintf("validate payload: %v", err))
	}
	if !result.Valid() {
		msg := "payload does not match expected shape"
		if errs := result.Errors(); len(errs) > 0 {
			msg = errs[0].String()
		}
		return storage.ErrParse(msg)
	}
	return nil
}
