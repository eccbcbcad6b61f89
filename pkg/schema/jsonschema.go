package schema

// JSONSchema renders the parameter list as a JSON-schema object, the shape
// agents expect when actions are registered.
func (p Params) JSONSchema() map[string]any {
	properties := make(map[string]any, len(p))
	required := make([]string, 0, len(p))

	for _, param := range p {
		prop := describe(param.Type)
		if param.Description != "" {
			prop["description"] = param.Description
		}
		properties[param.Name] = prop
		if param.Required {
			required = append(required, param.Name)
		}
	}

	out := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		out["required"] = required
	}
	return out
}

func describe(t Type) map[string]any {
	switch typ := t.(type) {
	case *RangeType:
		prop := describe(typ.base)
		if typ.min != nil {
			prop["minimum"] = *typ.min
		}
		if typ.max != nil {
			prop["maximum"] = *typ.max
		}
		return prop
	case *EnumType:
		prop := describe(typ.base)
		prop["enum"] = typ.values
		return prop
	case *SliceType:
		return map[string]any{"type": "array", "items": describe(typ.elemType)}
	case *StringType:
		return map[string]any{"type": "string"}
	case *IntType:
		return map[string]any{"type": "integer"}
	case *FloatType:
		return map[string]any{"type": "number"}
	case *BoolType:
		return map[string]any{"type": "boolean"}
	default:
		return map[string]any{}
	}
}
