// Package tracking stores per-instance field snapshots and computes the diff
// between an instance's current values and its last-observed state.
package tracking

import (
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Change holds the previous and current value of one field.
type Change struct {
	Old any
	New any
}

// ChangeSet maps field names to their (old, new) value pairs. An empty
// ChangeSet suppresses listener delivery.
type ChangeSet map[string]Change

// Names returns the changed field names, sorted.
func (cs ChangeSet) Names() []string {
	names := make([]string, 0, len(cs))
	for name := range cs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshots is the per-instance store of last-observed field values, keyed by
// registration so independent registrations on the same instance do not
// interfere. Embed it in an instance type to satisfy Carrier; it lives and
// dies with the instance, so no process-wide table of instances is kept.
//
// The zero value is ready to use.
type Snapshots struct {
	mu    sync.Mutex
	byReg map[uuid.UUID]map[string]any
}

// FieldSnapshots implements Carrier for embedders.
func (s *Snapshots) FieldSnapshots() *Snapshots { return s }

// forRegistration returns the snapshot for one registration, creating an empty
// one if absent.
func (s *Snapshots) forRegistration(key uuid.UUID) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.byReg == nil {
		s.byReg = make(map[uuid.UUID]map[string]any)
	}
	snap, ok := s.byReg[key]
	if !ok {
		snap = make(map[string]any)
		s.byReg[key] = snap
	}
	return snap
}

// Recorded returns the field names currently held in the snapshot for one
// registration, sorted. Mostly useful in tests.
func (s *Snapshots) Recorded(key uuid.UUID) []string {
	snap := s.forRegistration(key)
	names := make([]string, 0, len(snap))
	for name := range snap {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Carrier is implemented by instances that carry their own snapshot store.
// Embedding Snapshots in the instance type is sufficient.
type Carrier interface {
	FieldSnapshots() *Snapshots
}
