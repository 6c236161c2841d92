package tracking

import (
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"

	"github.com/conduit-lang/fieldsignals/schema"
)

// DiffAndUpdate compares the current values of the given fields on an instance
// against the snapshot held for the given registration key, and writes the
// newly observed values back into the snapshot.
//
// Deferred fields are skipped entirely: they are neither diffed nor written
// into the snapshot until materialized. Raw values are normalized before
// comparison, and a field absent from the snapshot diffs against a previous
// value of nil. Mutable values (slices, maps, pointers and composites holding
// them) are stored as deep copies so later external mutation cannot corrupt
// future comparisons.
//
// Because the snapshot is updated in place, a second call with no intervening
// mutation yields an empty ChangeSet; callers must not expect the same
// non-empty result twice.
func DiffAndUpdate(inst schema.Instance, key uuid.UUID, fields []schema.Field) (ChangeSet, error) {
	carrier, ok := inst.(Carrier)
	if !ok {
		return nil, fmt.Errorf("instance of model %s does not carry field snapshots (embed tracking.Snapshots)",
			inst.Model().ModelName())
	}
	snap := carrier.FieldSnapshots().forRegistration(key)
	deferred := inst.DeferredFields()

	changes := make(ChangeSet)
	for _, f := range fields {
		name := f.Name()
		if _, skip := deferred[name]; skip {
			continue
		}

		newValue, err := f.Normalize(f.ValueFromObject(inst))
		if err != nil {
			return nil, fmt.Errorf("field %s.%s: %w", inst.Model().ModelName(), name, err)
		}
		oldValue := snap[name] // absent means a previous value of nil

		if !equalValue(oldValue, newValue) {
			newValue = copyValue(newValue)
			changes[name] = Change{Old: oldValue, New: newValue}
			snap[name] = newValue
		}
	}
	return changes, nil
}

// equalValue compares two normalized values. time.Time compares by instant so
// format- or location-equivalent moments never read as a change.
func equalValue(a, b any) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	if at, ok := a.(time.Time); ok {
		if bt, ok := b.(time.Time); ok {
			return at.Equal(bt)
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

// copyValue returns a deep copy of anything outside the immutable set:
// slices, maps and pointers are rebuilt, and structs and arrays have their
// interior references rebuilt, so the snapshot never aliases data the caller
// can still mutate in place. Scalars and strings are returned as-is.
func copyValue(v any) any {
	if v == nil {
		return nil
	}
	if t, ok := v.(time.Time); ok {
		return t
	}
	return copyReflect(reflect.ValueOf(v)).Interface()
}

func copyReflect(val reflect.Value) reflect.Value {
	switch val.Kind() {
	case reflect.Slice:
		if val.IsNil() {
			return val
		}
		out := reflect.MakeSlice(val.Type(), val.Len(), val.Len())
		for i := 0; i < val.Len(); i++ {
			out.Index(i).Set(copyReflect(val.Index(i)))
		}
		return out
	case reflect.Map:
		if val.IsNil() {
			return val
		}
		out := reflect.MakeMapWithSize(val.Type(), val.Len())
		for _, mk := range val.MapKeys() {
			out.SetMapIndex(copyReflect(mk), copyReflect(val.MapIndex(mk)))
		}
		return out
	case reflect.Pointer:
		if val.IsNil() {
			return val
		}
		out := reflect.New(val.Type().Elem())
		out.Elem().Set(copyReflect(val.Elem()))
		return out
	case reflect.Interface:
		if val.IsNil() {
			return val
		}
		out := reflect.New(val.Type()).Elem()
		out.Set(copyReflect(val.Elem()))
		return out
	case reflect.Struct:
		// A value copy carries unexported fields; exported reference fields
		// are then rebuilt so interior slices, maps and pointers detach.
		out := reflect.New(val.Type()).Elem()
		out.Set(val)
		for i := 0; i < val.NumField(); i++ {
			f := out.Field(i)
			if !f.CanSet() {
				continue
			}
			switch f.Kind() {
			case reflect.Slice, reflect.Map, reflect.Pointer, reflect.Interface, reflect.Struct, reflect.Array:
				f.Set(copyReflect(val.Field(i)))
			}
		}
		return out
	case reflect.Array:
		out := reflect.New(val.Type()).Elem()
		out.Set(val)
		switch val.Type().Elem().Kind() {
		case reflect.Slice, reflect.Map, reflect.Pointer, reflect.Interface, reflect.Struct, reflect.Array:
			for i := 0; i < val.Len(); i++ {
				out.Index(i).Set(copyReflect(val.Index(i)))
			}
		}
		return out
	default:
		return val
	}
}
