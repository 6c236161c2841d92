// Package schema defines the boundary between fieldsignals and the host ORM.
// The host exposes its model metadata through these interfaces; fieldsignals
// never reaches into the host's own types.
package schema

import (
	"fmt"
	"time"
)

// Field describes one declared field of a model. Implementations are provided
// by the host framework (or FieldSpec for hosts that have no descriptor type
// of their own).
type Field interface {
	// Name is the declared field name, unique within its model.
	Name() string

	// ValueFromObject reads the field's current raw value from an instance.
	// It must not traverse relationships.
	ValueFromObject(inst Instance) any

	// Normalize converts a raw stored or assigned representation into the
	// canonical comparable value (e.g. a textual timestamp into time.Time).
	Normalize(raw any) (any, error)

	// ManyToMany reports whether this field is a many-to-many descriptor.
	ManyToMany() bool

	// OneToMany reports whether this field is a one-to-many descriptor.
	OneToMany() bool

	// ReverseRelation reports whether this field is the reverse side of a
	// relationship. Such fields have no scalar value to track.
	ReverseRelation() bool
}

// Model describes a record type: a name and its declared fields.
type Model interface {
	ModelName() string

	// ModelFields returns every declared field in declaration order.
	ModelFields() []Field
}

// Instance is one record of a Model.
type Instance interface {
	Model() Model

	// DeferredFields returns the names of declared fields whose values have
	// not been materialized from storage. May be nil when nothing is deferred.
	DeferredFields() map[string]struct{}
}

// FieldSpec is a ready-made Field implementation for hosts and tests.
type FieldSpec struct {
	FieldName  string
	Accessor   func(inst Instance) any
	Normalizer func(raw any) (any, error)

	IsManyToMany bool
	IsOneToMany  bool
	IsReverse    bool
}

func (f *FieldSpec) Name() string { return f.FieldName }

func (f *FieldSpec) ValueFromObject(inst Instance) any {
	if f.Accessor == nil {
		return nil
	}
	return f.Accessor(inst)
}

func (f *FieldSpec) Normalize(raw any) (any, error) {
	if f.Normalizer == nil {
		return raw, nil
	}
	return f.Normalizer(raw)
}

func (f *FieldSpec) ManyToMany() bool      { return f.IsManyToMany }
func (f *FieldSpec) OneToMany() bool       { return f.IsOneToMany }
func (f *FieldSpec) ReverseRelation() bool { return f.IsReverse }

// ModelSpec is a ready-made Model implementation for hosts and tests.
type ModelSpec struct {
	Name   string
	Fields []Field
}

func (m *ModelSpec) ModelName() string    { return m.Name }
func (m *ModelSpec) ModelFields() []Field { return m.Fields }

// TimeNormalizer returns a field normalizer that parses textual timestamps in
// the given layout and passes time.Time values through unchanged, so both
// representations of the same moment compare equal.
func TimeNormalizer(layout string) func(raw any) (any, error) {
	return func(raw any) (any, error) {
		switch v := raw.(type) {
		case nil:
			return nil, nil
		case time.Time:
			return v, nil
		case string:
			t, err := time.Parse(layout, v)
			if err != nil {
				return nil, fmt.Errorf("parse timestamp %q: %w", v, err)
			}
			return t, nil
		default:
			return nil, fmt.Errorf("cannot normalize %T as timestamp", raw)
		}
	}
}
