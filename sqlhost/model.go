// Package sqlhost is a reference host for fieldsignals: a minimal
// database/sql-backed record store that publishes the lifecycle events the
// change channels consume. It exists so applications without a full ORM can
// still use field signals, and it doubles as the integration surface for the
// library's own tests.
package sqlhost

import (
	"github.com/conduit-lang/fieldsignals/schema"
	"github.com/conduit-lang/fieldsignals/tracking"
)

// Column declares one column of a model definition.
type Column struct {
	Name string

	// Normalizer converts raw stored/assigned values to the canonical
	// comparable form. Optional.
	Normalizer func(raw any) (any, error)
}

// ModelDef describes a table-backed model. It implements schema.Model.
type ModelDef struct {
	name    string
	table   string
	pk      string
	fields  []schema.Field
	columns []string
}

// NewModelDef builds a model definition. pk must name one of the columns.
func NewModelDef(name, table, pk string, cols ...Column) *ModelDef {
	def := &ModelDef{
		name:  name,
		table: table,
		pk:    pk,
	}
	for _, col := range cols {
		colName := col.Name
		def.columns = append(def.columns, colName)
		def.fields = append(def.fields, &schema.FieldSpec{
			FieldName:  colName,
			Normalizer: col.Normalizer,
			Accessor: func(inst schema.Instance) any {
				rec, ok := inst.(*Record)
				if !ok {
					return nil
				}
				return rec.Get(colName)
			},
		})
	}
	return def
}

func (m *ModelDef) ModelName() string           { return m.name }
func (m *ModelDef) ModelFields() []schema.Field { return m.fields }

// Table returns the backing table name.
func (m *ModelDef) Table() string { return m.table }

// PrimaryKey returns the primary key column name.
func (m *ModelDef) PrimaryKey() string { return m.pk }

// Record is one row of a ModelDef. It implements schema.Instance and carries
// its own field snapshots, so snapshot lifetime equals record lifetime.
type Record struct {
	tracking.Snapshots

	def       *ModelDef
	values    map[string]any
	deferred  map[string]struct{}
	persisted bool
}

func (r *Record) Model() schema.Model { return r.def }

func (r *Record) DeferredFields() map[string]struct{} { return r.deferred }

// Get returns the current raw value of a column.
func (r *Record) Get(name string) any { return r.values[name] }

// Set assigns a raw value to a column. Setting a deferred column materializes it.
func (r *Record) Set(name string, value any) {
	r.values[name] = value
	delete(r.deferred, name)
}

// Persisted reports whether the record is backed by an existing row.
func (r *Record) Persisted() bool { return r.persisted }
