package catalog

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed import_schema.json
var importSchemaJSON string

// importValidator validates bulk-import documents against a JSON Schema,
// caching compiled schemas. Only the embedded schema is used today; the cache
// keeps recompilation off the hot path if per-tenant schemas arrive later.
type importValidator struct {
	schemas *lru.Cache[string, *jsonschema.Schema]
}

func newImportValidator(cacheSize int) (*importValidator, error) {
	if cacheSize <= 0 {
		cacheSize = 16
	}
	cache, err := lru.New[string, *jsonschema.Schema](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create schema cache: %w", err)
	}
	return &importValidator{schemas: cache}, nil
}

// validate parses the document and checks it against the schema. The decoded
// document is returned so callers avoid a second parse.
func (v *importValidator) validate(schemaJSON string, doc []byte) (any, error) {
	schema, ok := v.schemas.Get(schemaJSON)
	if !ok {
		compiled, err := compileSchema(schemaJSON)
		if err != nil {
			return nil, fmt.Errorf("compile import schema: %w", err)
		}
		v.schemas.Add(schemaJSON, compiled)
		schema = compiled
	}

	parsed, err := jsonschema.UnmarshalJSON(bytes.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImport, err)
	}

	if err := schema.Validate(parsed); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidImport, formatSchemaError(err))
	}
	return parsed, nil
}

func compileSchema(schemaJSON string) (*jsonschema.Schema, error) {
	parsed, err := jsonschema.UnmarshalJSON(strings.NewReader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	compiler.DefaultDraft(jsonschema.Draft7)
	if err := compiler.AddResource("import_schema.json", parsed); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	return compiler.Compile("import_schema.json")
}

// formatSchemaError renders a validation error with its JSON path, e.g.
// "at '$.products.0.sku': minLength failed".
func formatSchemaError(err error) string {
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return err.Error()
	}

	path := "$"
	for _, part := range ve.InstanceLocation {
		if part != "" {
			path += "." + part
		}
	}

	msg := ve.Error()
	if len(msg) > 200 {
		msg = msg[:200] + "... (truncated)"
	}
	return fmt.Sprintf("at '%s': %s", path, msg)
}
