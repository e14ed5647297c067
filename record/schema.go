package record

import (
	"bytes"
	"embed"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/justapithecus/tankreplay/types"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

const schemaBaseURL = "https://tankreplay.dev/schemas/"

var schemaFiles = map[types.RecordKind]string{
	types.RecordKindTermination: "termination.schema.json",
	types.RecordKindMap:         "map.schema.json",
	types.RecordKindRoster:      "roster.schema.json",
	types.RecordKindDelta:       "delta.schema.json",
}

// schemaSet holds one compiled schema per record variant.
type schemaSet map[types.RecordKind]*jsonschema.Schema

// loadSchemas compiles the embedded schemas once per process.
var loadSchemas = sync.OnceValues(compileSchemas)

func compileSchemas() (schemaSet, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft7

	for _, name := range schemaFiles {
		data, err := schemaFS.ReadFile("schemas/" + name)
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", name, err)
		}
		if err := c.AddResource(schemaBaseURL+name, bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("add schema %s: %w", name, err)
		}
	}

	set := make(schemaSet, len(schemaFiles))
	for kind, name := range schemaFiles {
		s, err := c.Compile(schemaBaseURL + name)
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", name, err)
		}
		set[kind] = s
	}
	return set, nil
}

// validate checks a decoded line against the schema for kind.
func (s schemaSet) validate(kind types.RecordKind, line int, v any) error {
	schema, ok := s[kind]
	if !ok {
		return nil
	}
	if err := schema.Validate(v); err != nil {
		return &RecordError{
			Kind:    RecordErrorShape,
			Line:    line,
			Variant: kind,
			Msg:     "record does not match its variant",
			Err:     err,
		}
	}
	return nil
}
