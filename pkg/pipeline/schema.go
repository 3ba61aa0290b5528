package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/xhad/ackaudit/internal/models"
)

// extractionSchema is the contract for payloads handed to Verify from outside the process.
const extractionSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["sentences"],
  "properties": {
    "title": {"type": "string"},
    "authors": {"type": ["array", "null"], "items": {"type": "string"}},
    "identifier": {"type": "string"},
    "year": {"type": "string"},
    "instruments": {"type": ["array", "null"], "items": {"type": "string"}},
    "num_pages": {"type": "integer", "minimum": 0},
    "sentences": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "required": ["id", "page", "index", "text"],
        "properties": {
          "id": {"type": "string", "pattern": "^p[0-9]+_s[0-9]+$"},
          "page": {"type": "integer", "minimum": 1},
          "index": {"type": "integer", "minimum": 1},
          "text": {"type": "string"}
        }
      }
    },
    "pages": {"type": ["array", "null"]}
  }
}`

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("extraction.json", bytes.NewReader([]byte(extractionSchema))); err != nil {
			schemaErr = fmt.Errorf("add schema: %w", err)
			return
		}
		schema, schemaErr = compiler.Compile("extraction.json")
	})
	return schema, schemaErr
}

// DecodeExtraction validates data against the extraction schema and decodes it.
func DecodeExtraction(data []byte) (*models.Extraction, error) {
	s, err := compiledSchema()
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	var v any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("unmarshal extraction: %w", err)
	}
	if err := s.Validate(v); err != nil {
		return nil, fmt.Errorf("extraction does not match schema: %w", err)
	}

	var ext models.Extraction
	if err := json.Unmarshal(data, &ext); err != nil {
		return nil, fmt.Errorf("decode extraction: %w", err)
	}
	return &ext, nil
}
