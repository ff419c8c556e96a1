// Package model implements the in-memory data model of spec §3: rows,
// models, spaces, and the global namespace, backed by the striped skymap
// index and driving the per-model delta state consumed by the batch
// journal.
package model

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/skyenginedb/skyengine/pkg/skymap"
	"github.com/skyenginedb/skyengine/pkg/types"
)

// DeltaVersion is a monotonic counter generated per model (spec §3).
type DeltaVersion = uint64

// versionGen issues strictly increasing DeltaVersions for one model.
type versionGen struct {
	counter atomic.Uint64
}

func (g *versionGen) next() DeltaVersion {
	return g.counter.Add(1)
}

// RowData is the mutable part of a Row, guarded by Row's own RWMutex.
type RowData struct {
	Fields      map[string]types.Datacell
	TxnRevised  DeltaVersion
}

// Row is a single primary-keyed record. Its data is mutated only under its
// own lock; the primary index returns shared handles so that a shard lock
// is never held while a row lock is taken (spec §5 locking discipline).
type Row struct {
	PK            types.Datacell
	mu            sync.RWMutex
	data          RowData
	SchemaVersion DeltaVersion
	DataVersion   DeltaVersion
}

// NewRow builds a row at the given initial versions.
func NewRow(pk types.Datacell, fields map[string]types.Datacell, schemaVersion, dataVersion DeltaVersion) *Row {
	return &Row{
		PK:            pk,
		data:          RowData{Fields: fields, TxnRevised: dataVersion},
		SchemaVersion: schemaVersion,
		DataVersion:   dataVersion,
	}
}

// ReadFields returns a snapshot of the row's fields and txn_revised under a
// read lock.
func (r *Row) ReadFields() (map[string]types.Datacell, DeltaVersion) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]types.Datacell, len(r.data.Fields))
	for k, v := range r.data.Fields {
		out[k] = v
	}
	return out, r.data.TxnRevised
}

// TxnRevised returns the row's current txn_revised under a read lock.
func (r *Row) TxnRevised() DeltaVersion {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.data.TxnRevised
}

// WithWriteLock runs fn with the row's write lock held, letting the caller
// mutate fields and advance txn_revised atomically with respect to other
// writers. txn_revised must be non-decreasing (spec invariant 3); fn is
// trusted to uphold that.
func (r *Row) WithWriteLock(fn func(data *RowData)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.data)
}

// ResolveSchemaDeltasAndFreezeIf takes a read lock and returns a snapshot of
// the row's fields/version if pred(txn_revised) holds; this backs the
// batch-writer's "re-read the target row under a read lock at the delta's
// version" step (spec §4.4).
func (r *Row) ResolveSchemaDeltasAndFreezeIf(pred func(txnRevised DeltaVersion) bool) (fields map[string]types.Datacell, version DeltaVersion, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !pred(r.data.TxnRevised) {
		return nil, 0, false
	}
	out := make(map[string]types.Datacell, len(r.data.Fields))
	for k, v := range r.data.Fields {
		out[k] = v
	}
	return out, r.data.TxnRevised, true
}

// DataDeltaKind is the kind of change a DataDelta records.
type DataDeltaKind int

const (
	DeltaInsert DataDeltaKind = iota
	DeltaUpdate
	DeltaDelete
)

// DataDelta is a recorded row change awaiting durable write (spec §3).
type DataDelta struct {
	Version DeltaVersion
	Row     *Row
	Kind    DataDeltaKind
}

// DeltaState is a model's FIFO of pending DataDeltas plus its schema
// version counter (spec §3). The queue is a simple mutex-guarded slice: the
// original's MPMC queue collapses to this under Go's single-process model,
// since only the batch-writer task drains it.
type DeltaState struct {
	mu                   sync.Mutex
	schemaCurrentVersion DeltaVersion
	queue                []DataDelta
	versions             versionGen
}

// NextVersion allocates the next DeltaVersion for this model.
func (d *DeltaState) NextVersion() DeltaVersion { return d.versions.next() }

// SchemaCurrentVersion returns the model's current schema version.
func (d *DeltaState) SchemaCurrentVersion() DeltaVersion {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.schemaCurrentVersion
}

// BumpSchemaVersion increments the schema version by one, as required once
// per successful ALTER that changes the materialized schema (spec
// invariant 4).
func (d *DeltaState) BumpSchemaVersion() DeltaVersion {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.schemaCurrentVersion++
	return d.schemaCurrentVersion
}

// Enqueue pushes a DataDelta onto the tail of the queue.
func (d *DeltaState) Enqueue(delta DataDelta) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queue = append(d.queue, delta)
}

// Len reports the current queue length.
func (d *DeltaState) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// PopUpTo pops at most n deltas from the head of the queue, non-destructive
// of anything beyond that count — this is the "observed_len" snapshot the
// batch-writer's commit protocol takes (spec §4.4).
func (d *DeltaState) PopUpTo(n int) []DataDelta {
	d.mu.Lock()
	defer d.mu.Unlock()
	if n > len(d.queue) {
		n = len(d.queue)
	}
	out := make([]DataDelta, n)
	copy(out, d.queue[:n])
	d.queue = d.queue[n:]
	return out
}

// Requeue pushes deltas back onto the head of the queue, preserving their
// relative order. Used when a batch write fails after popping (spec §4.4
// recovery marker path; see DESIGN.md's Open Question decision on the
// marker-before-requeue ordering).
func (d *DeltaState) Requeue(deltas []DataDelta) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queue = append(append([]DataDelta{}, deltas...), d.queue...)
}

// schemaSnapshot captures the field layout in effect as of a given schema
// version, so batches written before a later ALTER still decode correctly
// (spec §4.4).
type schemaSnapshot struct {
	pkTag  types.Tag
	fields *types.FieldSet
}

// Model is a typed table with a declared primary key (spec §3).
type Model struct {
	UUID         types.UUID
	PKName       string
	PKTag        types.Tag
	Fields       *types.FieldSet // excludes the primary key field
	PrimaryIndex *skymap.Map[types.PrimaryIndexKey, *Row]
	Delta        *DeltaState

	historyMu sync.Mutex
	history   map[DeltaVersion]schemaSnapshot
}

// NewModel builds a model with an empty primary index sized for the host's
// CPU count, and records its schema at version 1 — genesis, so that the
// first ALTER that bumps schema_current_version lands on 2 (spec invariant
// 4, spec §8 scenario 3).
func NewModel(id types.UUID, pkName string, pkTag types.Tag, fields *types.FieldSet) *Model {
	m := &Model{
		UUID:         id,
		PKName:       pkName,
		PKTag:        pkTag,
		Fields:       fields,
		PrimaryIndex: skymap.New[types.PrimaryIndexKey, *Row](runtime.NumCPU(), pikHash),
		Delta:        &DeltaState{schemaCurrentVersion: 1},
		history:      make(map[DeltaVersion]schemaSnapshot),
	}
	m.history[1] = schemaSnapshot{pkTag: pkTag, fields: fields.Clone()}
	return m
}

// RecordSchemaVersion snapshots the model's current field layout under
// version, called by the DDL engine immediately after an ALTER bumps
// schema_current_version (spec §4.7).
func (m *Model) RecordSchemaVersion(version DeltaVersion) {
	m.historyMu.Lock()
	defer m.historyMu.Unlock()
	m.history[version] = schemaSnapshot{pkTag: m.PKTag, fields: m.Fields.Clone()}
}

// ResolveSchemaAt returns the field layout in effect as of schemaVersion,
// backing the batch journal's SchemaAt resolver.
func (m *Model) ResolveSchemaAt(schemaVersion DeltaVersion) (pkTag types.Tag, fields *types.FieldSet, ok bool) {
	m.historyMu.Lock()
	defer m.historyMu.Unlock()
	snap, ok := m.history[schemaVersion]
	if !ok {
		return types.Tag{}, nil, false
	}
	return snap.pkTag, snap.fields, true
}

func pikHash(k types.PrimaryIndexKey) uint64 {
	return xxhash.Sum64String(k.Bytes)
}

// SchemaVersion returns the model's current schema version, surfaced on
// read paths so DML can detect a row written under an older field set
// (spec SPEC_FULL §C.4).
func (m *Model) SchemaVersion() DeltaVersion {
	return m.Delta.SchemaCurrentVersion()
}
