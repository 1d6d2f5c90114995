package parser

import (
	_ "embed"
	"fmt"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schema.json
var schemaJSON []byte

var (
	compiledSchema *gojsonschema.Schema
	compileErr     error
	compileOnce    sync.Once
)

// Schema returns the JSON Schema test documents are validated against.
func Schema() []byte {
	out := make([]byte, len(schemaJSON))
	copy(out, schemaJSON)
	return out
}

func documentSchema() (*gojsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiledSchema, compileErr = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaJSON))
	})
	return compiledSchema, compileErr
}

// validateStructure checks a JSON document against the embedded schema.
func validateStructure(doc []byte) ValidationErrors {
	schema, err := documentSchema()
	if err != nil {
		return ValidationErrors{{Path: "", Message: fmt.Sprintf("schema: %v", err)}}
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return ValidationErrors{{Path: "", Message: err.Error()}}
	}
	if result.Valid() {
		return nil
	}

	var errs ValidationErrors
	for _, desc := range result.Errors() {
		// if/then branches report a summary error alongside the real one.
		if desc.Type() == "condition_then" || desc.Type() == "number_all_of" {
			continue
		}
		errs = append(errs, &ValidationError{
			Path:    desc.Field(),
			Message: desc.Description(),
		})
	}
	if len(errs) == 0 {
		errs = append(errs, &ValidationError{Path: "", Message: "document does not match schema"})
	}
	return errs
}
