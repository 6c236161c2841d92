package sqlhost

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/conduit-lang/fieldsignals/bus"
	"github.com/conduit-lang/fieldsignals/schema"
)

// Dialect selects the SQL placeholder style.
type Dialect int

const (
	// DialectGeneric uses ? placeholders (sqlite, mysql).
	DialectGeneric Dialect = iota
	// DialectPostgres uses $1..$n placeholders.
	DialectPostgres
)

func (d Dialect) placeholder(i int) string {
	if d == DialectPostgres {
		return fmt.Sprintf("$%d", i)
	}
	return "?"
}

// Host bundles a database handle with the event bus and model registry, and
// turns record construction and saves into the lifecycle events fieldsignals
// listens for.
type Host struct {
	db       *sql.DB
	bus      *bus.Bus
	registry *schema.Registry
	using    string
	dialect  Dialect
}

// New creates a host. using names the data store; it is carried on post-save
// notifications.
func New(db *sql.DB, b *bus.Bus, r *schema.Registry, using string, dialect Dialect) *Host {
	return &Host{
		db:       db,
		bus:      b,
		registry: r,
		using:    using,
		dialect:  dialect,
	}
}

// Register adds a model definition to the registry.
func (h *Host) Register(def *ModelDef) error {
	return h.registry.Register(def)
}

// NewRecord constructs an in-memory record with the given initial values and
// publishes its initialization event, which seeds change snapshots.
func (h *Host) NewRecord(ctx context.Context, def *ModelDef, values map[string]any) (*Record, error) {
	rec := &Record{
		def:      def,
		values:   make(map[string]any, len(values)),
		deferred: make(map[string]struct{}),
	}
	for name, v := range values {
		if !containsColumn(def.columns, name) {
			return nil, fmt.Errorf("%w: %q on model %q", ErrUnknownColumn, name, def.name)
		}
		rec.values[name] = v
	}

	if err := h.bus.Publish(ctx, bus.Message{Event: bus.PostInit, Instance: rec}); err != nil {
		return nil, err
	}
	return rec, nil
}

// Save persists a record, publishing pre-save before the statement runs and
// post-save after it succeeds. A listener error aborts the save (pre-save) or
// surfaces after it (post-save); either way it propagates to the caller.
func (h *Host) Save(ctx context.Context, rec *Record) error {
	if err := h.bus.Publish(ctx, bus.Message{Event: bus.PreSave, Instance: rec}); err != nil {
		return err
	}

	created := !rec.persisted
	var err error
	if created {
		err = h.insert(ctx, rec)
	} else {
		err = h.update(ctx, rec)
	}
	if err != nil {
		return ConvertDBError(err)
	}
	rec.persisted = true

	return h.bus.Publish(ctx, bus.Message{
		Event:    bus.PostSave,
		Instance: rec,
		Created:  created,
		Using:    h.using,
	})
}

func (h *Host) insert(ctx context.Context, rec *Record) error {
	def := rec.def

	var cols []string
	var args []any
	for _, name := range def.columns {
		if _, skip := rec.deferred[name]; skip {
			continue
		}
		cols = append(cols, name)
		args = append(args, rec.values[name])
	}

	marks := make([]string, len(cols))
	for i := range cols {
		marks[i] = h.dialect.placeholder(i + 1)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		def.table, strings.Join(cols, ", "), strings.Join(marks, ", "))

	_, err := h.db.ExecContext(ctx, query, args...)
	return err
}

func (h *Host) update(ctx context.Context, rec *Record) error {
	def := rec.def

	var sets []string
	var args []any
	i := 0
	for _, name := range def.columns {
		if name == def.pk {
			continue
		}
		if _, skip := rec.deferred[name]; skip {
			continue
		}
		i++
		sets = append(sets, fmt.Sprintf("%s = %s", name, h.dialect.placeholder(i)))
		args = append(args, rec.values[name])
	}
	if len(sets) == 0 {
		// Every non-key column is deferred; there is nothing to persist.
		return nil
	}
	args = append(args, rec.values[def.pk])
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s",
		def.table, strings.Join(sets, ", "), def.pk, h.dialect.placeholder(i+1))

	res, err := h.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// Fetch loads one row by primary key. When columns are given, only those are
// selected and the rest of the model's columns stay deferred until assigned.
// The loaded record's initialization event is published so snapshots reflect
// the stored state.
func (h *Host) Fetch(ctx context.Context, def *ModelDef, pkValue any, columns ...string) (*Record, error) {
	selected := columns
	if len(selected) == 0 {
		selected = def.columns
	}
	for _, name := range selected {
		if !containsColumn(def.columns, name) {
			return nil, fmt.Errorf("%w: %q on model %q", ErrUnknownColumn, name, def.name)
		}
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s",
		strings.Join(selected, ", "), def.table, def.pk, h.dialect.placeholder(1))

	row := h.db.QueryRowContext(ctx, query, pkValue)
	dest := make([]any, len(selected))
	for i := range dest {
		var v any
		dest[i] = &v
	}
	if err := row.Scan(dest...); err != nil {
		return nil, ConvertDBError(err)
	}

	rec := &Record{
		def:       def,
		values:    make(map[string]any, len(selected)),
		deferred:  make(map[string]struct{}),
		persisted: true,
	}
	for i, name := range selected {
		rec.values[name] = *(dest[i].(*any))
	}
	for _, name := range def.columns {
		if !containsColumn(selected, name) {
			rec.deferred[name] = struct{}{}
		}
	}

	if err := h.bus.Publish(ctx, bus.Message{Event: bus.PostInit, Instance: rec}); err != nil {
		return nil, err
	}
	return rec, nil
}

func containsColumn(cols []string, name string) bool {
	for _, c := range cols {
		if c == name {
			return true
		}
	}
	return false
}
