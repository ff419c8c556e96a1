package ddl

import (
	skyerrors "github.com/skyenginedb/skyengine/pkg/errors"
	"github.com/skyenginedb/skyengine/pkg/journal/eventlog"
	"github.com/skyenginedb/skyengine/pkg/model"
	"github.com/skyenginedb/skyengine/pkg/queryast"
	"github.com/skyenginedb/skyengine/pkg/types"
)

// CreateModel implements spec §4.7's Model.create: exactly one field must be
// marked IsPK, and its tag must satisfy CanBePrimaryKey.
func (e *Engine) CreateModel(req queryast.CreateModel) error {
	if err := validateIdentifier(req.Entity.Name); err != nil {
		return skyerrors.NewQueryError(skyerrors.KindQExecDdlInvalidProperties, err.Error())
	}

	sref := e.GNS.IdxSpaces.Get(req.Entity.Space)
	if !sref.Found {
		return skyerrors.NewQueryError(skyerrors.KindQExecObjectNotFound, "space "+req.Entity.Space+" not found")
	}

	var pkName string
	pkCount := 0
	for _, f := range req.Fields {
		if f.IsPK {
			pkCount++
			pkName = f.Name
		}
	}
	if pkCount != 1 {
		return skyerrors.NewQueryError(skyerrors.KindQExecDdlInvalidTypeDefinition, "a model must declare exactly one primary key field")
	}

	key := model.ModelKey{Space: req.Entity.Space, Name: req.Entity.Name}

	lock := e.lockFor(req.Entity.Space)
	lock.Lock()
	defer lock.Unlock()

	if ref := e.GNS.IdxModels.Get(key); ref.Found {
		return skyerrors.NewQueryError(skyerrors.KindQExecDdlObjectAlreadyExists, "model "+req.Entity.Name+" already exists")
	}

	var pkTag types.Tag
	for _, f := range req.Fields {
		if f.Name != pkName || len(f.Layers) == 0 {
			continue
		}
		pkTag = f.Layers[0].Tag
		if !pkTag.CanBePrimaryKey() {
			return skyerrors.NewQueryError(skyerrors.KindQExecDdlInvalidTypeDefinition, "field "+pkName+" cannot serve as a primary key")
		}
	}

	payload := eventlog.CreateModelPayload{
		UUID:   types.NewUUID(),
		Space:  req.Entity.Space,
		Name:   req.Entity.Name,
		PKName: pkName,
		Fields: fieldDeclsFrom(req.Fields),
	}
	if err := e.gnsJournal.AppendEvent(eventlog.TagCreateModel, eventlog.EncodePayload(payload.Encode())); err != nil {
		return skyerrors.NewTxnError("CreateModel", err)
	}
	if err := e.applyCreateModel(payload); err != nil {
		return skyerrors.NewTxnError("CreateModel", err)
	}
	return nil
}

// AlterPlan is the outcome of validating an ALTER MODEL request against the
// current schema (spec §4.7): every assignment is classified before any of
// them are applied, so a single illegal change rejects the whole statement.
type AlterPlan struct {
	// NeedsLock is true if at least one assignment narrows a field
	// (nullable true->false): the spec requires the model's write path to
	// serialize against this change, surfaced to the caller as
	// QExecNeedLock rather than applied silently.
	NeedsLock bool
}

// AlterModel implements spec §4.7's Model.alter for all three kinds.
func (e *Engine) AlterModel(req queryast.AlterModel) (AlterPlan, error) {
	key := model.ModelKey{Space: req.Entity.Space, Name: req.Entity.Name}
	ref := e.GNS.IdxModels.Get(key)
	if !ref.Found {
		return AlterPlan{}, skyerrors.NewQueryError(skyerrors.KindQExecObjectNotFound, "model "+req.Entity.Name+" not found")
	}

	lock := e.lockFor(req.Entity.Space)
	lock.Lock()
	defer lock.Unlock()

	switch req.Kind {
	case queryast.AlterAdd:
		return e.alterModelAdd(key, ref.Value, req.Add)
	case queryast.AlterRemove:
		return e.alterModelRemove(key, req.Entity, req.RemoveNames)
	case queryast.AlterUpdate:
		return e.alterModelUpdate(key, ref.Value, req.Update)
	default:
		return AlterPlan{}, skyerrors.NewQueryError(skyerrors.KindQExecDdlModelAlterIllegal, "unknown alter kind")
	}
}

func (e *Engine) alterModelAdd(key model.ModelKey, m *model.Model, fields []queryast.FieldDeclaration) (AlterPlan, error) {
	for _, f := range fields {
		if _, exists := m.Fields.Get(f.Name); exists || f.Name == m.PKName {
			return AlterPlan{}, skyerrors.NewQueryError(skyerrors.KindQExecDdlObjectAlreadyExists, "field "+f.Name+" already exists")
		}
	}
	payload := eventlog.AlterModelAddPayload{Space: key.Space, Name: key.Name, Fields: fieldDeclsFrom(fields)}
	if err := e.gnsJournal.AppendEvent(eventlog.TagAlterModelAdd, eventlog.EncodePayload(payload.Encode())); err != nil {
		return AlterPlan{}, skyerrors.NewTxnError("AlterModel", err)
	}
	if err := e.applyAlterAdd(payload); err != nil {
		return AlterPlan{}, skyerrors.NewTxnError("AlterModel", err)
	}
	return AlterPlan{}, nil
}

func (e *Engine) alterModelRemove(key model.ModelKey, ent queryast.Entity, names []string) (AlterPlan, error) {
	ref := e.GNS.IdxModels.Get(key)
	for _, n := range names {
		if n == ref.Value.PKName {
			return AlterPlan{}, skyerrors.NewQueryError(skyerrors.KindQExecDdlModelAlterIllegal, "cannot remove the primary key field")
		}
		if _, exists := ref.Value.Fields.Get(n); !exists {
			return AlterPlan{}, skyerrors.NewQueryError(skyerrors.KindQExecUnknownField, "field "+n+" does not exist")
		}
	}
	payload := eventlog.AlterModelRemovePayload{Space: ent.Space, Name: ent.Name, FieldNames: names}
	if err := e.gnsJournal.AppendEvent(eventlog.TagAlterModelRemove, eventlog.EncodePayload(payload.Encode())); err != nil {
		return AlterPlan{}, skyerrors.NewTxnError("AlterModel", err)
	}
	if err := e.applyAlterRemove(payload); err != nil {
		return AlterPlan{}, skyerrors.NewTxnError("AlterModel", err)
	}
	return AlterPlan{}, nil
}

// alterModelUpdate classifies each assignment per spec §4.7: a selector
// change within the same TagClass that only widens (e.g. Int8 -> Int32) is
// accepted lock-free; any TagClass change is rejected outright;
// nullable false->true is free, true->false always needs a lock.
func (e *Engine) alterModelUpdate(key model.ModelKey, m *model.Model, fields []queryast.FieldDeclaration) (AlterPlan, error) {
	plan := AlterPlan{}
	for _, f := range fields {
		existing, exists := m.Fields.Get(f.Name)
		if !exists {
			return AlterPlan{}, skyerrors.NewQueryError(skyerrors.KindQExecUnknownField, "field "+f.Name+" does not exist")
		}
		if len(f.Layers) == 0 || len(existing.Layers) == 0 {
			return AlterPlan{}, skyerrors.NewQueryError(skyerrors.KindQExecDdlInvalidTypeDefinition, "field "+f.Name+" must declare a type layer")
		}
		oldTag, newTag := existing.Layers[0].Tag, f.Layers[0].Tag
		if oldTag.Class != newTag.Class {
			return AlterPlan{}, skyerrors.NewQueryError(skyerrors.KindQExecDdlInvalidTypeDefinition, "field "+f.Name+" cannot change class")
		}
		if newTag.Selector.Width() < oldTag.Selector.Width() {
			return AlterPlan{}, skyerrors.NewQueryError(skyerrors.KindQExecDdlInvalidTypeDefinition, "field "+f.Name+" cannot be narrowed")
		}
		if existing.Nullable && !f.Nullable {
			plan.NeedsLock = true
		}
	}
	if plan.NeedsLock {
		return plan, skyerrors.NewQueryError(skyerrors.KindQExecNeedLock, "alter narrows a nullable field; retry under an exclusive lock")
	}

	payload := eventlog.AlterModelUpdatePayload{Space: key.Space, Name: key.Name, Fields: fieldDeclsFrom(fields)}
	if err := e.gnsJournal.AppendEvent(eventlog.TagAlterModelUpdate, eventlog.EncodePayload(payload.Encode())); err != nil {
		return plan, skyerrors.NewTxnError("AlterModel", err)
	}
	if err := e.applyAlterUpdate(payload); err != nil {
		return plan, skyerrors.NewTxnError("AlterModel", err)
	}
	return plan, nil
}

// DropModel implements spec §4.7's Model.drop.
func (e *Engine) DropModel(req queryast.DropModel) error {
	if req.Entity.Name == "default" || req.Entity.Name == "_system" {
		return skyerrors.NewQueryError(skyerrors.KindQExecDdlNotEmpty, "the "+req.Entity.Name+" model cannot be dropped")
	}

	key := model.ModelKey{Space: req.Entity.Space, Name: req.Entity.Name}
	ref := e.GNS.IdxModels.Get(key)
	if !ref.Found {
		if req.IfExists {
			return nil
		}
		return skyerrors.NewQueryError(skyerrors.KindQExecObjectNotFound, "model "+req.Entity.Name+" not found")
	}

	lock := e.lockFor(req.Entity.Space)
	lock.Lock()
	defer lock.Unlock()

	if !req.Force && ref.Value.PrimaryIndex.Len() > 0 {
		return skyerrors.NewQueryError(skyerrors.KindQExecDdlNotEmpty, "model "+req.Entity.Name+" still has rows")
	}

	payload := eventlog.DropModelPayload{Space: req.Entity.Space, Name: req.Entity.Name}
	if err := e.gnsJournal.AppendEvent(eventlog.TagDropModel, eventlog.EncodePayload(payload.Encode())); err != nil {
		return skyerrors.NewTxnError("DropModel", err)
	}

	e.GNS.IdxModels.Remove(key)
	if sref := e.GNS.IdxSpaces.Get(req.Entity.Space); sref.Found {
		sref.Value.RemoveModel(req.Entity.Name)
	}
	return nil
}
