package graph

import (
	"fmt"
)

// StorageMetadata maps each variable instance to its slice of a flat
// storage buffer. Offsets partition the buffer with no gaps or overlaps.
//
// Two layouts exist for every graph: the storage layout, sized by each
// variable's StorageDim, and the local layout, sized by LocalDim, used
// for tangent-space deltas and Jacobian columns.
type StorageMetadata struct {
	offsets map[Variable]int
	order   []Variable
	dim     int
	local   bool
}

// NewStorageMetadata lays out the given variables by their storage
// dimension. Duplicates are ignored; variables are grouped by concrete
// type (in order of first appearance) so same-type values sit
// contiguously, then ordered by first appearance within each group.
func NewStorageMetadata(variables []Variable) *StorageMetadata {
	return newStorageMetadata(variables, false)
}

// NewLocalStorageMetadata lays out the given variables by their local
// (tangent) dimension, using the same ordering as NewStorageMetadata.
func NewLocalStorageMetadata(variables []Variable) *StorageMetadata {
	return newStorageMetadata(variables, true)
}

func newStorageMetadata(variables []Variable, local bool) *StorageMetadata {
	var typeOrder []string
	groups := make(map[string][]Variable)
	seen := make(map[Variable]bool, len(variables))

	for _, v := range variables {
		if seen[v] {
			continue
		}
		seen[v] = true

		k := typeKey(v)
		if _, ok := groups[k]; !ok {
			typeOrder = append(typeOrder, k)
		}
		groups[k] = append(groups[k], v)
	}

	m := &StorageMetadata{
		offsets: make(map[Variable]int, len(seen)),
		local:   local,
	}
	for _, k := range typeOrder {
		for _, v := range groups[k] {
			m.order = append(m.order, v)
			m.offsets[v] = m.dim
			m.dim += m.dimOf(v)
		}
	}
	return m
}

func (m *StorageMetadata) dimOf(v Variable) int {
	if m.local {
		return v.LocalDim()
	}
	return v.StorageDim()
}

// Dim returns the total buffer length the layout covers.
func (m *StorageMetadata) Dim() int { return m.dim }

// NumVariables returns the number of variables in the layout.
func (m *StorageMetadata) NumVariables() int { return len(m.order) }

// Variables returns the layout order. The returned slice must not be
// modified.
func (m *StorageMetadata) Variables() []Variable { return m.order }

// Offset returns the starting offset of v's slice, and whether v is part
// of the layout.
func (m *StorageMetadata) Offset(v Variable) (int, bool) {
	off, ok := m.offsets[v]
	return off, ok
}

// Assignments is a flat buffer holding every variable's stored value
// contiguously, addressed through a StorageMetadata. Solvers replace
// Assignments wholesale on accepted iterations instead of mutating them,
// which is what makes cross-stack parallel evaluation safe without locks.
type Assignments struct {
	storage []float64
	meta    *StorageMetadata
}

// NewAssignments returns a zero-initialized Assignments over the layout.
func NewAssignments(meta *StorageMetadata) *Assignments {
	return &Assignments{
		storage: make([]float64, meta.Dim()),
		meta:    meta,
	}
}

// NewAssignmentsFromStorage wraps an existing buffer, which must have
// exactly the layout's length. The buffer is not copied.
func NewAssignmentsFromStorage(meta *StorageMetadata, storage []float64) (*Assignments, error) {
	if len(storage) != meta.Dim() {
		return nil, fmt.Errorf("graph: storage length %d for layout of dim %d: %w",
			len(storage), meta.Dim(), ErrDimensionMismatch)
	}
	return &Assignments{storage: storage, meta: meta}, nil
}

// Storage returns the underlying flat buffer. Callers must treat it as
// read-only; stacks index into it directly.
func (a *Assignments) Storage() []float64 { return a.storage }

// Metadata returns the layout the buffer is addressed through.
func (a *Assignments) Metadata() *StorageMetadata { return a.meta }

// Set copies value into v's slice of the buffer.
func (a *Assignments) Set(v Variable, value []float64) error {
	off, ok := a.meta.Offset(v)
	if !ok {
		return fmt.Errorf("graph: set %T: %w", v, ErrUnknownVariable)
	}
	if len(value) != a.meta.dimOf(v) {
		return fmt.Errorf("graph: set %T: value length %d, want %d: %w",
			v, len(value), a.meta.dimOf(v), ErrDimensionMismatch)
	}
	copy(a.storage[off:off+len(value)], value)
	return nil
}

// Get returns a read-only view of v's slice of the buffer.
func (a *Assignments) Get(v Variable) ([]float64, error) {
	off, ok := a.meta.Offset(v)
	if !ok {
		return nil, fmt.Errorf("graph: get %T: %w", v, ErrUnknownVariable)
	}
	return a.storage[off : off+a.meta.dimOf(v)], nil
}

// Clone returns a deep copy sharing the (immutable) metadata.
func (a *Assignments) Clone() *Assignments {
	out := &Assignments{
		storage: make([]float64, len(a.storage)),
		meta:    a.meta,
	}
	copy(out.storage, a.storage)
	return out
}

// ManifoldRetract applies a tangent-space delta to every variable in one
// pass, producing a new Assignments. delta must be laid out over the
// local metadata of the same variables; the receiver is left untouched.
func (a *Assignments) ManifoldRetract(delta *Assignments) (*Assignments, error) {
	out := &Assignments{
		storage: make([]float64, len(a.storage)),
		meta:    a.meta,
	}
	for _, v := range a.meta.order {
		off := a.meta.offsets[v]
		doff, ok := delta.meta.Offset(v)
		if !ok {
			return nil, fmt.Errorf("graph: retract %T: %w", v, ErrUnknownVariable)
		}
		v.Retract(
			out.storage[off:off+v.StorageDim()],
			a.storage[off:off+v.StorageDim()],
			delta.storage[doff:doff+v.LocalDim()],
		)
	}
	return out, nil
}
