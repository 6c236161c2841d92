package tracking

import (
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/conduit-lang/fieldsignals/schema"
)

type testInstance struct {
	Snapshots
	model    schema.Model
	values   map[string]any
	deferred map[string]struct{}
}

func (i *testInstance) Model() schema.Model                 { return i.model }
func (i *testInstance) DeferredFields() map[string]struct{} { return i.deferred }

func valueField(name string) schema.Field {
	return &schema.FieldSpec{
		FieldName: name,
		Accessor: func(inst schema.Instance) any {
			return inst.(*testInstance).values[name]
		},
	}
}

func newTestInstance(values map[string]any) *testInstance {
	return &testInstance{
		model:  &schema.ModelSpec{Name: "Widget"},
		values: values,
	}
}

func TestDiffAndUpdate_FirstObservation(t *testing.T) {
	inst := newTestInstance(map[string]any{"a": "x", "b": 7})
	fields := []schema.Field{valueField("a"), valueField("b")}
	key := uuid.New()

	changes, err := DiffAndUpdate(inst, key, fields)
	if err != nil {
		t.Fatal(err)
	}

	// Everything diffs against a prior value of nil on first observation.
	want := ChangeSet{
		"a": {Old: nil, New: "x"},
		"b": {Old: nil, New: 7},
	}
	if !reflect.DeepEqual(changes, want) {
		t.Errorf("changes = %v, want %v", changes, want)
	}

	// A second call with no mutation yields an empty set.
	changes, err = DiffAndUpdate(inst, key, fields)
	if err != nil {
		t.Fatal(err)
	}
	if len(changes) != 0 {
		t.Errorf("expected empty changeset, got %v", changes)
	}
}

func TestDiffAndUpdate_DetectsChanges(t *testing.T) {
	tests := []struct {
		name    string
		initial any
		updated any
		changed bool
	}{
		{name: "string change", initial: "x", updated: "z", changed: true},
		{name: "string unchanged", initial: "x", updated: "x", changed: false},
		{name: "int change", initial: 1, updated: 2, changed: true},
		{name: "nil to value", initial: nil, updated: "v", changed: true},
		{name: "value to nil", initial: "v", updated: nil, changed: true},
		{name: "slice change", initial: []string{"a"}, updated: []string{"a", "b"}, changed: true},
		{name: "slice unchanged", initial: []string{"a"}, updated: []string{"a"}, changed: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst := newTestInstance(map[string]any{"f": tt.initial})
			fields := []schema.Field{valueField("f")}
			key := uuid.New()

			if _, err := DiffAndUpdate(inst, key, fields); err != nil {
				t.Fatal(err)
			}

			inst.values["f"] = tt.updated
			changes, err := DiffAndUpdate(inst, key, fields)
			if err != nil {
				t.Fatal(err)
			}

			if tt.changed {
				ch, ok := changes["f"]
				if !ok {
					t.Fatalf("expected a change for f, got %v", changes)
				}
				if !reflect.DeepEqual(ch.Old, tt.initial) || !reflect.DeepEqual(ch.New, tt.updated) {
					t.Errorf("change = (%v, %v), want (%v, %v)", ch.Old, ch.New, tt.initial, tt.updated)
				}
			} else if len(changes) != 0 {
				t.Errorf("expected no changes, got %v", changes)
			}
		})
	}
}

func TestDiffAndUpdate_NormalizesBeforeComparing(t *testing.T) {
	field := &schema.FieldSpec{
		FieldName: "published_at",
		Accessor: func(inst schema.Instance) any {
			return inst.(*testInstance).values["published_at"]
		},
		Normalizer: schema.TimeNormalizer(time.RFC3339),
	}

	inst := newTestInstance(map[string]any{"published_at": "2026-01-02T15:04:05Z"})
	key := uuid.New()

	if _, err := DiffAndUpdate(inst, key, []schema.Field{field}); err != nil {
		t.Fatal(err)
	}

	// Same moment as a time.Time must not read as a change.
	inst.values["published_at"] = time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)
	changes, err := DiffAndUpdate(inst, key, []schema.Field{field})
	if err != nil {
		t.Fatal(err)
	}
	if len(changes) != 0 {
		t.Errorf("equivalent timestamp representations should not change, got %v", changes)
	}

	// A genuinely different moment must.
	inst.values["published_at"] = "2026-01-03T00:00:00Z"
	changes, err = DiffAndUpdate(inst, key, []schema.Field{field})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := changes["published_at"]; !ok {
		t.Errorf("expected published_at to change, got %v", changes)
	}
}

func TestDiffAndUpdate_CopiesMutableValues(t *testing.T) {
	tags := []string{"go", "orm"}
	inst := newTestInstance(map[string]any{"tags": tags})
	fields := []schema.Field{valueField("tags")}
	key := uuid.New()

	if _, err := DiffAndUpdate(inst, key, fields); err != nil {
		t.Fatal(err)
	}

	// Mutate the live slice in place. The snapshot must still hold the value
	// as recorded, so the next diff sees old=["go","orm"].
	tags[1] = "sql"
	changes, err := DiffAndUpdate(inst, key, fields)
	if err != nil {
		t.Fatal(err)
	}
	ch, ok := changes["tags"]
	if !ok {
		t.Fatalf("expected tags to change, got %v", changes)
	}
	if !reflect.DeepEqual(ch.Old, []string{"go", "orm"}) {
		t.Errorf("old value = %v, want [go orm]", ch.Old)
	}
	if !reflect.DeepEqual(ch.New, []string{"go", "sql"}) {
		t.Errorf("new value = %v, want [go sql]", ch.New)
	}
}

func TestDiffAndUpdate_CopiesPointerValues(t *testing.T) {
	type profile struct {
		Bio string
	}

	p := &profile{Bio: "old"}
	inst := newTestInstance(map[string]any{"profile": p})
	fields := []schema.Field{valueField("profile")}
	key := uuid.New()

	if _, err := DiffAndUpdate(inst, key, fields); err != nil {
		t.Fatal(err)
	}

	// Mutating through the live pointer must still read as a change: the
	// snapshot holds its own copy of the pointee, not the same object.
	p.Bio = "new"
	changes, err := DiffAndUpdate(inst, key, fields)
	if err != nil {
		t.Fatal(err)
	}
	ch, ok := changes["profile"]
	if !ok {
		t.Fatalf("expected profile to change, got %v", changes)
	}
	if got := ch.Old.(*profile).Bio; got != "old" {
		t.Errorf("old value Bio = %q, want %q", got, "old")
	}
	if got := ch.New.(*profile).Bio; got != "new" {
		t.Errorf("new value Bio = %q, want %q", got, "new")
	}
}

func TestDiffAndUpdate_CopiesInteriorReferences(t *testing.T) {
	type tagged struct {
		Name string
		Tags []string
	}

	v := tagged{Name: "post", Tags: []string{"a"}}
	inst := newTestInstance(map[string]any{"meta": v})
	fields := []schema.Field{valueField("meta")}
	key := uuid.New()

	if _, err := DiffAndUpdate(inst, key, fields); err != nil {
		t.Fatal(err)
	}

	// Interface boxing copies the struct but not its slice's backing array;
	// the snapshot must have detached it.
	v.Tags[0] = "b"
	inst.values["meta"] = v
	changes, err := DiffAndUpdate(inst, key, fields)
	if err != nil {
		t.Fatal(err)
	}
	ch, ok := changes["meta"]
	if !ok {
		t.Fatalf("expected meta to change, got %v", changes)
	}
	if got := ch.Old.(tagged).Tags[0]; got != "a" {
		t.Errorf("old value Tags[0] = %q, want %q", got, "a")
	}
	if got := ch.New.(tagged).Tags[0]; got != "b" {
		t.Errorf("new value Tags[0] = %q, want %q", got, "b")
	}
}

func TestDiffAndUpdate_SkipsDeferredFields(t *testing.T) {
	inst := newTestInstance(map[string]any{"a": "x", "b": "y"})
	inst.deferred = map[string]struct{}{"b": {}}
	fields := []schema.Field{valueField("a"), valueField("b")}
	key := uuid.New()

	changes, err := DiffAndUpdate(inst, key, fields)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := changes["b"]; ok {
		t.Error("deferred field must not be diffed")
	}
	if got := inst.FieldSnapshots().Recorded(key); !reflect.DeepEqual(got, []string{"a"}) {
		t.Errorf("snapshot holds %v, want [a]", got)
	}

	// Materialize b: it becomes trackable, diffing against nil.
	inst.deferred = nil
	changes, err = DiffAndUpdate(inst, key, fields)
	if err != nil {
		t.Fatal(err)
	}
	if ch, ok := changes["b"]; !ok || ch.Old != nil || ch.New != "y" {
		t.Errorf("materialized field change = %v, want (nil, y)", changes["b"])
	}
}

func TestDiffAndUpdate_RegistrationsDoNotInterfere(t *testing.T) {
	inst := newTestInstance(map[string]any{"a": "x"})
	fields := []schema.Field{valueField("a")}
	key1, key2 := uuid.New(), uuid.New()

	if _, err := DiffAndUpdate(inst, key1, fields); err != nil {
		t.Fatal(err)
	}

	inst.values["a"] = "z"

	// key1 already observed "x"; key2 never observed anything.
	changes, err := DiffAndUpdate(inst, key1, fields)
	if err != nil {
		t.Fatal(err)
	}
	if ch := changes["a"]; ch.Old != "x" || ch.New != "z" {
		t.Errorf("key1 change = %v, want (x, z)", ch)
	}

	changes, err = DiffAndUpdate(inst, key2, fields)
	if err != nil {
		t.Fatal(err)
	}
	if ch := changes["a"]; ch.Old != nil || ch.New != "z" {
		t.Errorf("key2 change = %v, want (nil, z)", ch)
	}
}

func TestDiffAndUpdate_NormalizerErrorPropagates(t *testing.T) {
	wantErr := errors.New("bad value")
	field := &schema.FieldSpec{
		FieldName: "f",
		Accessor: func(inst schema.Instance) any {
			return inst.(*testInstance).values["f"]
		},
		Normalizer: func(raw any) (any, error) {
			return nil, wantErr
		},
	}

	inst := newTestInstance(map[string]any{"f": "x"})
	_, err := DiffAndUpdate(inst, uuid.New(), []schema.Field{field})
	if !errors.Is(err, wantErr) {
		t.Errorf("err = %v, want wrapped %v", err, wantErr)
	}
}

type bareInstance struct {
	model schema.Model
}

func (i *bareInstance) Model() schema.Model                 { return i.model }
func (i *bareInstance) DeferredFields() map[string]struct{} { return nil }

func TestDiffAndUpdate_RequiresCarrier(t *testing.T) {
	inst := &bareInstance{model: &schema.ModelSpec{Name: "Widget"}}
	_, err := DiffAndUpdate(inst, uuid.New(), []schema.Field{valueField("a")})
	if err == nil {
		t.Fatal("expected an error for instances without snapshot storage")
	}
}

func TestChangeSet_Names(t *testing.T) {
	cs := ChangeSet{
		"b": {Old: 1, New: 2},
		"a": {Old: "x", New: "y"},
	}
	if got := cs.Names(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("Names() = %v, want [a b]", got)
	}
}

func ExampleChangeSet_Names() {
	cs := ChangeSet{"title": {Old: "draft", New: "published"}}
	fmt.Println(cs.Names())
	// Output: [title]
}
