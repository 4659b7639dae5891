package plan

import (
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// deliverPayloadSchemaDoc is the JSON Schema a data.deliver.structured
// step's payload must satisfy once normalization has finished filling it
// in: every field missingClickValidations's sibling deliverPayloadIssue
// checks by hand (schema/artifact_label/filename/source_step_id) must be a
// non-empty string. This is the schema half of spec.md's SchemaValidation
// failure mode (§7): the hand-written presence checks in
// internal/planrunner's PlanValidator catch the same defects earlier and
// with a better error message, but this schema is what strict mode runs
// against the payload's actual JSON shape, not just Go struct field access.
const deliverPayloadSchemaDoc = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["schema", "artifact_label", "filename", "source_step_id"],
	"properties": {
		"schema": {"type": "string", "minLength": 1},
		"artifact_label": {"type": "string", "minLength": 1},
		"filename": {"type": "string", "minLength": 1},
		"source_step_id": {"type": "string", "minLength": 1}
	}
}`

// customPayloadSchemaDoc is the minimal shape every Custom tool's payload
// must satisfy: a JSON object. A planner that emits a bare array or scalar
// for a tool payload has produced something no executor can consume as
// named arguments.
const customPayloadSchemaDoc = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object"
}`

var compiledDeliverSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	return compileSchema("deliver-payload.json", deliverPayloadSchemaDoc)
})

var compiledCustomSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	return compileSchema("custom-payload.json", customPayloadSchemaDoc)
})

func compileSchema(resourceName, doc string) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	unmarshaled, err := jsonschema.UnmarshalJSON(strings.NewReader(doc))
	if err != nil {
		return nil, err
	}
	if err := compiler.AddResource(resourceName, unmarshaled); err != nil {
		return nil, err
	}
	return compiler.Compile(resourceName)
}

// ValidateDeliverPayload checks payload against deliverPayloadSchemaDoc,
// used by a strict-mode PlanValidator in addition to (not instead of) its
// own field-by-field checks.
func ValidateDeliverPayload(payload map[string]any) error {
	schema, err := compiledDeliverSchema()
	if err != nil {
		return err
	}
	return schema.Validate(payload)
}

// ValidateCustomPayload checks that payload is a well-formed JSON object,
// the minimal shape every Custom tool payload must have. name is accepted
// for call-site clarity and future per-tool schema dispatch; every Custom
// tool shares the same object-shape requirement today.
func ValidateCustomPayload(name string, payload map[string]any) error {
	schema, err := compiledCustomSchema()
	if err != nil {
		return err
	}
	return schema.Validate(payload)
}
