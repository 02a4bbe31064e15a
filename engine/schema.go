package engine

import (
	"bytes"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const flowSchemaURL = "https://chatflow.local/schemas/flow.json"

// flowDocumentSchema describes what the editor exports. Node data is checked
// loosely; executors report field-level problems at run time.
const flowDocumentSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["nodes"],
  "properties": {
    "nodes": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["id", "type"],
        "properties": {
          "id":    {"type": ["string", "integer"]},
          "type":  {"type": "string", "minLength": 1},
          "start": {"type": "boolean"},
          "data":  {"type": "object"}
        }
      }
    },
    "edges": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["source", "target"],
        "properties": {
          "source":       {"type": ["string", "integer"]},
          "target":       {"type": ["string", "integer"]},
          "sourceHandle": {"type": ["string", "null"]},
          "handle":       {"type": ["string", "null"]}
        }
      }
    }
  }
}`

// FlowValidator checks flow documents before they are stored.
type FlowValidator struct {
	schema *jsonschema.Schema
}

func NewFlowValidator() (*FlowValidator, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader([]byte(flowDocumentSchema)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse flow schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource(flowSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("failed to add flow schema: %w", err)
	}

	schema, err := c.Compile(flowSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("failed to compile flow schema: %w", err)
	}

	return &FlowValidator{schema: schema}, nil
}

// Validate runs the schema and the graph invariants, returning the parsed graph.
func (v *FlowValidator) Validate(doc []byte) (*FlowGraph, error) {
	if len(bytes.TrimSpace(doc)) == 0 {
		return nil, ErrEmptyFlow()
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(doc))
	if err != nil {
		return nil, ErrInvalidFlow().
			WithDetail("reason", "flow document is not valid JSON").
			WithDetail("cause", err.Error())
	}

	if err := v.schema.Validate(inst); err != nil {
		return nil, ErrInvalidFlow().
			WithDetail("reason", "flow document does not match schema").
			WithDetail("cause", err.Error())
	}

	graph, err := ParseFlowGraph("", doc)
	if err != nil {
		return nil, err
	}
	if err := graph.Validate(); err != nil {
		return nil, err
	}
	return graph, nil
}
