package dml

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	skyerrors "github.com/skyenginedb/skyengine/pkg/errors"
	"github.com/skyenginedb/skyengine/pkg/fractal"
	"github.com/skyenginedb/skyengine/pkg/journal"
	"github.com/skyenginedb/skyengine/pkg/journal/batch"
	"github.com/skyenginedb/skyengine/pkg/model"
	"github.com/skyenginedb/skyengine/pkg/queryast"
	"github.com/skyenginedb/skyengine/pkg/sdss"
	"github.com/skyenginedb/skyengine/pkg/types"
)

// Engine executes DML operations (spec §4.8) against a GlobalNS built by
// pkg/engine/ddl, owning one batch journal per model.
type Engine struct {
	GNS      *model.GlobalNS
	DataRoot string

	// Fractal is set once by the caller after construction (main.go builds
	// the fractal.Manager with Engine.WriteBatchHandler as its handler,
	// which requires Engine to exist first).
	Fractal *fractal.Manager

	ServerVersion uint64
	DriverVersion uint64
	NowEpochNanos func() uint64

	mu       sync.Mutex
	journals map[model.ModelKey]*journal.Journal
}

// NewEngine builds a DML engine sharing the given GlobalNS with the DDL
// engine.
func NewEngine(gns *model.GlobalNS, dataRoot string, serverVersion, driverVersion uint64, nowEpochNanos func() uint64) *Engine {
	return &Engine{
		GNS:           gns,
		DataRoot:      dataRoot,
		ServerVersion: serverVersion,
		DriverVersion: driverVersion,
		NowEpochNanos: nowEpochNanos,
		journals:      make(map[model.ModelKey]*journal.Journal),
	}
}

// Close closes every open per-model batch journal.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var firstErr error
	for _, j := range e.journals {
		if err := j.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func modelUniqueID(space, name string) fractal.ModelUniqueID {
	return fractal.ModelUniqueID(space + "/" + name)
}

func splitModelUniqueID(id fractal.ModelUniqueID) (space, name string, ok bool) {
	parts := strings.SplitN(string(id), "/", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// lookupModel resolves (space, name) to both the Space and the Model,
// returning a QExecObjectNotFound error if either is missing.
func (e *Engine) lookupModel(ent queryast.Entity) (*model.Space, *model.Model, error) {
	sref := e.GNS.IdxSpaces.Get(ent.Space)
	if !sref.Found {
		return nil, nil, skyerrors.NewQueryError(skyerrors.KindQExecObjectNotFound, "space "+ent.Space+" not found")
	}
	mref := e.GNS.IdxModels.Get(model.ModelKey{Space: ent.Space, Name: ent.Name})
	if !mref.Found {
		return nil, nil, skyerrors.NewQueryError(skyerrors.KindQExecObjectNotFound, "model "+ent.Name+" not found")
	}
	return sref.Value, mref.Value, nil
}

// batchJournalFor lazily opens (or returns) the model's batch journal, whose
// SchemaAt resolver walks the model's recorded schema history and whose
// Apply callback replays restored deltas straight into the primary index
// (spec §4.4's Restore procedure).
func (e *Engine) batchJournalFor(space *model.Space, m *model.Model, key model.ModelKey) (*journal.Journal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if j, ok := e.journals[key]; ok {
		return j, nil
	}

	dir := filepath.Join(e.DataRoot, "spaces", space.Name+"-"+space.UUID.String(), "mdl-"+key.Name+"-"+m.UUID.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, "data.db-btlog")

	adapter := &batch.Adapter{
		Schema: func(schemaVersion uint64) (types.Tag, []batch.NamedField, error) {
			pkTag, fields, ok := m.ResolveSchemaAt(schemaVersion)
			if !ok {
				return types.Tag{}, nil, fmt.Errorf("dml: unresolvable schema version %d for model %s", schemaVersion, key.Name)
			}
			return pkTag, namedFieldsOf(fields), nil
		},
		Apply: func(d batch.Delta) error {
			applyRestoredDelta(m, d)
			return nil
		},
	}

	j, err := journal.Open(path, journal.OpenOptions{
		ServerVersion:     e.ServerVersion,
		DriverVersion:     e.DriverVersion,
		FileSpecifier:     sdss.FileSpecifierModelBatchJournal,
		FileSpecifierVer:  1,
		CreatedEpochNanos: e.NowEpochNanos(),
		Adapter:           adapter,
	})
	if err != nil {
		return nil, err
	}
	e.journals[key] = j
	return j, nil
}

func namedFieldsOf(fields *types.FieldSet) []batch.NamedField {
	names := fields.Names()
	out := make([]batch.NamedField, 0, len(names))
	for _, n := range names {
		f, _ := fields.Get(n)
		out = append(out, batch.NamedField{Name: n, Field: f})
	}
	return out
}

// applyRestoredDelta reconstructs in-memory row state from a batch journal
// delta during replay.
func applyRestoredDelta(m *model.Model, d batch.Delta) {
	pik, ok := types.NewPrimaryIndexKey(d.PK)
	if !ok {
		return
	}
	switch d.Kind {
	case batch.EventDelete:
		m.PrimaryIndex.Remove(pik)
	default:
		row := model.NewRow(d.PK, d.Values, m.SchemaVersion(), d.Version)
		m.PrimaryIndex.Upsert(pik, row)
	}
}

// Insert implements spec §4.8's INSERT statement.
func (e *Engine) Insert(req queryast.Insert) (queryast.Response, error) {
	_, m, err := e.lookupModel(req.Entity)
	if err != nil {
		return queryast.ErrorResponse(err), err
	}

	pkVal, ok := req.Row[m.PKName]
	if !ok || pkVal.IsNull() {
		err := skyerrors.NewQueryError(skyerrors.KindQExecDmlValidationError, "missing primary key value")
		return queryast.ErrorResponse(err), err
	}
	pik, ok := types.NewPrimaryIndexKey(pkVal)
	if !ok {
		err := skyerrors.NewQueryError(skyerrors.KindQExecDmlValidationError, "invalid primary key value")
		return queryast.ErrorResponse(err), err
	}

	fields := make(map[string]types.Datacell, m.Fields.Len())
	for _, name := range m.Fields.Names() {
		decl, _ := m.Fields.Get(name)
		v, present := req.Row[name]
		if !present {
			if !decl.Nullable {
				err := skyerrors.NewQueryError(skyerrors.KindQExecDmlValidationError, "missing required field "+name)
				return queryast.ErrorResponse(err), err
			}
			v = types.NewNull(cellTagOf(decl))
		} else if !types.LayerCompat(decl.Layers, v.Tag) && !(v.IsNull() && decl.Nullable) {
			err := skyerrors.NewQueryError(skyerrors.KindQExecDmlValidationError, "field "+name+" type mismatch")
			return queryast.ErrorResponse(err), err
		}
		fields[name] = v
	}

	version := m.Delta.NextVersion()
	row := model.NewRow(pkVal, fields, m.SchemaVersion(), version)
	if !m.PrimaryIndex.Insert(pik, row) {
		err := skyerrors.NewQueryError(skyerrors.KindQExecDdlObjectAlreadyExists, "row with this primary key already exists")
		return queryast.ErrorResponse(err), err
	}

	m.Delta.Enqueue(model.DataDelta{Version: version, Row: row, Kind: model.DeltaInsert})
	e.requestBatchResolveIfCacheFull(req.Entity, m)
	return queryast.EmptyResponse(), nil
}

// Update implements spec §4.8's UPDATE statement and rollback discipline.
func (e *Engine) Update(req queryast.Update) (queryast.Response, error) {
	_, m, err := e.lookupModel(req.Entity)
	if err != nil {
		return queryast.ErrorResponse(err), err
	}
	pik, ok := types.NewPrimaryIndexKey(req.Where.PK)
	if !ok {
		err := skyerrors.NewQueryError(skyerrors.KindQExecDmlValidationError, "invalid primary key value")
		return queryast.ErrorResponse(err), err
	}
	ref := m.PrimaryIndex.Get(pik)
	if !ref.Found {
		err := skyerrors.NewQueryError(skyerrors.KindQExecDmlRowNotFound, "no row for this primary key")
		return queryast.ErrorResponse(err), err
	}
	row := ref.Value

	var applyErr error
	row.WithWriteLock(func(data *model.RowData) {
		type undo struct {
			field string
			prev  types.Datacell
		}
		var rollback []undo

		for _, a := range req.Assignments {
			decl, exists := m.Fields.Get(a.Field)
			if !exists {
				applyErr = skyerrors.NewQueryError(skyerrors.KindQExecUnknownField, "field "+a.Field+" does not exist")
				break
			}
			current := data.Fields[a.Field]
			next, err := applyAssign(current, decl, a.Operator, a.Literal)
			if err != nil {
				applyErr = err
				break
			}
			rollback = append(rollback, undo{field: a.Field, prev: current})
			data.Fields[a.Field] = next
		}

		if applyErr != nil {
			for i := len(rollback) - 1; i >= 0; i-- {
				data.Fields[rollback[i].field] = rollback[i].prev
			}
			return
		}
		data.TxnRevised = m.Delta.NextVersion()
	})
	if applyErr != nil {
		return queryast.ErrorResponse(applyErr), applyErr
	}

	m.Delta.Enqueue(model.DataDelta{Version: row.TxnRevised(), Row: row, Kind: model.DeltaUpdate})
	e.requestBatchResolveIfCacheFull(req.Entity, m)
	return queryast.EmptyResponse(), nil
}

// Delete implements spec §4.8's DELETE statement.
func (e *Engine) Delete(req queryast.Delete) (queryast.Response, error) {
	_, m, err := e.lookupModel(req.Entity)
	if err != nil {
		return queryast.ErrorResponse(err), err
	}
	pik, ok := types.NewPrimaryIndexKey(req.Where.PK)
	if !ok {
		err := skyerrors.NewQueryError(skyerrors.KindQExecDmlValidationError, "invalid primary key value")
		return queryast.ErrorResponse(err), err
	}
	row, existed := m.PrimaryIndex.Remove(pik)
	if !existed {
		err := skyerrors.NewQueryError(skyerrors.KindQExecDmlRowNotFound, "no row for this primary key")
		return queryast.ErrorResponse(err), err
	}

	version := m.Delta.NextVersion()
	m.Delta.Enqueue(model.DataDelta{Version: version, Row: row, Kind: model.DeltaDelete})
	e.requestBatchResolveIfCacheFull(req.Entity, m)
	return queryast.EmptyResponse(), nil
}

// Select implements spec §4.8's SELECT statement (PK lookup only, per the
// no-secondary-index non-goal).
func (e *Engine) Select(req queryast.Select) (queryast.Response, error) {
	_, m, err := e.lookupModel(req.Entity)
	if err != nil {
		return queryast.ErrorResponse(err), err
	}
	pik, ok := types.NewPrimaryIndexKey(req.Where.PK)
	if !ok {
		err := skyerrors.NewQueryError(skyerrors.KindQExecDmlValidationError, "invalid primary key value")
		return queryast.ErrorResponse(err), err
	}
	ref := m.PrimaryIndex.Get(pik)
	if !ref.Found {
		err := skyerrors.NewQueryError(skyerrors.KindQExecDmlRowNotFound, "no row for this primary key")
		return queryast.ErrorResponse(err), err
	}

	fields, _ := ref.Value.ReadFields()
	projection := req.Projection
	if len(projection) == 0 {
		projection = m.Fields.Names()
	}
	row := make([]types.Datacell, 0, len(projection)+1)
	row = append(row, ref.Value.PK)
	for _, name := range projection {
		row = append(row, fields[name])
	}
	return queryast.RowResponse(row), nil
}

// requestBatchResolveIfCacheFull implements spec §4.8 step 6: post a
// high-priority WriteBatch task once the model's delta backlog crosses
// either the manager's soft cap or 5% of the live row count.
func (e *Engine) requestBatchResolveIfCacheFull(ent queryast.Entity, m *model.Model) {
	if e.Fractal == nil {
		return
	}
	hint := m.Delta.Len()
	threshold := e.Fractal.PerModelDeltaMaxSize()
	fivePercent := m.PrimaryIndex.Len() / 20
	if hint < threshold && hint < fivePercent {
		return
	}
	_ = e.Fractal.SubmitWriteBatch(fractal.WriteBatchTask{
		Model:            modelUniqueID(ent.Space, ent.Name),
		DrainedDeltaSize: hint,
	})
}

// WriteBatchHandler drains a model's pending deltas into its batch journal,
// re-reading each row under its own lock to elide deltas superseded by a
// later write (spec §4.4's stale-delta elision), and on failure writes a
// recovery marker before requeuing the undrained deltas (see DESIGN.md's
// Open Question decision on marker-before-requeue ordering).
func (e *Engine) WriteBatchHandler(ctx context.Context, task fractal.WriteBatchTask) error {
	space, name, ok := splitModelUniqueID(task.Model)
	if !ok {
		return fmt.Errorf("dml: malformed model unique id %q", task.Model)
	}
	key := model.ModelKey{Space: space, Name: name}

	sref := e.GNS.IdxSpaces.Get(space)
	mref := e.GNS.IdxModels.Get(key)
	if !sref.Found || !mref.Found {
		return nil // model/space dropped concurrently; nothing to drain
	}
	m := mref.Value

	j, err := e.batchJournalFor(sref.Value, m, key)
	if err != nil {
		return err
	}

	deltas := m.Delta.PopUpTo(task.DrainedDeltaSize)
	if len(deltas) == 0 {
		return nil
	}

	schemaVersion := m.SchemaVersion()
	fields := namedFieldsOf(m.Fields)

	batchDeltas := make([]batch.Delta, len(deltas))
	skip := make(map[int]bool, len(deltas))
	for i, d := range deltas {
		bd := batch.Delta{Version: d.Version, PK: d.Row.PK}
		switch d.Kind {
		case model.DeltaInsert:
			bd.Kind = batch.EventInsert
		case model.DeltaUpdate:
			bd.Kind = batch.EventUpdate
		case model.DeltaDelete:
			bd.Kind = batch.EventDelete
		}
		if bd.Kind != batch.EventDelete {
			values, version, ok := d.Row.ResolveSchemaDeltasAndFreezeIf(func(txnRevised model.DeltaVersion) bool {
				return txnRevised <= d.Version
			})
			if !ok {
				skip[i] = true
			} else {
				bd.Values = values
				bd.Version = version
			}
		}
		batchDeltas[i] = bd
	}

	// WriteBatch iterates batchDeltas in order and calls skip once per
	// element, so a simple position counter is exact (no PK/version
	// matching needed).
	skipIdx := 0
	writeErr := j.AppendEvent(batch.TagBatch, batch.WriteBatch(schemaVersion, m.PKTag, fields, batchDeltas, func(batch.Delta) bool {
		s := skip[skipIdx]
		skipIdx++
		return s
	}))
	if writeErr != nil {
		var applied uint64
		for i := range batchDeltas {
			if !skip[i] {
				applied++
			}
		}
		_ = j.AppendEvent(batch.TagBatch, batch.WriteRecoveryMarker(applied))
		m.Delta.Requeue(deltas)
		return writeErr
	}
	return nil
}
