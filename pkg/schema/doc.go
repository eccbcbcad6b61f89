// Package schema provides the parameter type system used to validate agent
// action requests.
//
// It defines built-in types (string, int, float, bool), lists, custom
// validators and two constraints, Range and Enum. An ordered Params list
// describes the parameters of one action:
//
//	params := schema.Params{
//	    {Name: "distance", Type: schema.Range(schema.Float(), ptr(0), ptr(20)), Required: true},
//	    {Name: "direction", Type: schema.Enum(schema.String(), "left", "right"), Required: true},
//	}
//
//	if err := params.Validate(map[string]any{"distance": 4.0, "direction": "left"}); err != nil {
//	    // Handle validation errors
//	}
//
// Params.JSONSchema renders the same list in the JSON-schema form sent to the
// agent.
//
// The package has no dependencies beyond the Go standard library.
package schema
