package zarr

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// zarraySchema covers the required fields of a version 2 .zarray document.
// dtype is left open since structured types nest arbitrarily.
const zarraySchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["zarr_format", "shape", "chunks", "dtype", "order"],
  "properties": {
    "zarr_format": {"type": "integer", "enum": [2]},
    "shape": {"type": "array", "items": {"type": "integer", "minimum": 0}},
    "chunks": {"type": "array", "items": {"type": "integer", "minimum": 1}},
    "order": {"enum": ["C", "F"]},
    "compressor": {
      "oneOf": [
        {"type": "null"},
        {"type": "object", "required": ["id"], "properties": {"id": {"type": "string"}}}
      ]
    },
    "filters": {"type": ["array", "null"]},
    "dimension_separator": {"enum": [".", "/"]}
  }
}`

var arrayMetaSchema = jsonschema.MustCompileString("zarray.json", zarraySchema)

// ValidateArrayMeta checks a raw .zarray document against the version 2
// schema and that shape and chunks have the same rank.
func ValidateArrayMeta(data []byte) error {
	var v interface{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidMetadata, err)
	}
	if err := arrayMetaSchema.Validate(v); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidMetadata, err)
	}
	doc, _ := v.(map[string]interface{})
	shape, _ := doc["shape"].([]interface{})
	chunks, _ := doc["chunks"].([]interface{})
	if len(shape) != len(chunks) {
		return fmt.Errorf("%w: shape has rank %d but chunks has rank %d", ErrInvalidMetadata, len(shape), len(chunks))
	}
	return nil
}
