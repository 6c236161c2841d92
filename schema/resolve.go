package schema

import (
	"errors"
	"fmt"
)

// Field resolution errors. They are wrapped into the fieldsignals
// configuration error chain at registration time.
var (
	// ErrUnknownField is returned when a requested name matches no declared field.
	ErrUnknownField = errors.New("unknown field")

	// ErrReverseRelation is returned when a requested field is the reverse side
	// of a relationship; such fields have no stable scalar value to diff.
	ErrReverseRelation = errors.New("reverse related fields cannot be watched")

	// ErrNoFields is returned when resolution produces an empty field set.
	ErrNoFields = errors.New("fields must be non-empty")
)

func isReverseRel(f Field) bool {
	return f.ManyToMany() || f.OneToMany() || f.ReverseRelation()
}

// Resolve maps an optional list of field names to the concrete trackable
// fields of a model, in declaration order.
//
// A nil names list selects every declared field that is not a reverse
// relation. An explicit list must name only existing, non-reverse fields.
func Resolve(model Model, names []string) ([]Field, error) {
	declared := model.ModelFields()

	if names == nil {
		fields := make([]Field, 0, len(declared))
		for _, f := range declared {
			if !isReverseRel(f) {
				fields = append(fields, f)
			}
		}
		if len(fields) == 0 {
			return nil, ErrNoFields
		}
		return fields, nil
	}

	byName := make(map[string]Field, len(declared))
	for _, f := range declared {
		byName[f.Name()] = f
	}

	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		f, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q on model %q", ErrUnknownField, name, model.ModelName())
		}
		if isReverseRel(f) {
			return nil, fmt.Errorf("%w: %q on model %q", ErrReverseRelation, name, model.ModelName())
		}
		seen[name] = struct{}{}
	}

	// Declaration order, independent of the order names were given in.
	fields := make([]Field, 0, len(seen))
	for _, f := range declared {
		if _, ok := seen[f.Name()]; ok {
			fields = append(fields, f)
		}
	}
	if len(fields) == 0 {
		return nil, ErrNoFields
	}
	return fields, nil
}
