package schema

import "sort"

// Param describes one named parameter of an action.
type Param struct {
	Name        string
	Type        Type
	Required    bool
	Description string
}

// Params is an ordered parameter list.
type Params []Param

// Lookup returns the parameter with the given name.
func (p Params) Lookup(name string) (Param, bool) {
	for _, param := range p {
		if param.Name == name {
			return param, true
		}
	}
	return Param{}, false
}

// Validate checks data against the parameter list.
// Missing required parameters, type or constraint violations and
// undeclared parameters are all reported in a single AggregateError.
func (p Params) Validate(data map[string]any) error {
	var errs []error

	for _, param := range p {
		value, exists := data[param.Name]
		if !exists {
			if param.Required {
				errs = append(errs, &ValidationError{Key: param.Name, Reason: "required"})
			}
			continue
		}
		if err := param.Type.Validate(value); err != nil {
			errs = append(errs, &ValidationError{
				Key:    param.Name,
				Reason: err.Error(),
				Value:  value,
			})
		}
	}

	unknown := make([]string, 0)
	for key := range data {
		if _, ok := p.Lookup(key); !ok {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)
	for _, key := range unknown {
		errs = append(errs, &ValidationError{Key: key, Reason: "not declared", Value: data[key]})
	}

	if len(errs) > 0 {
		return &AggregateError{Errors: errs}
	}
	return nil
}
