package ddl

import (
	"os"
	"path/filepath"

	skyerrors "github.com/skyenginedb/skyengine/pkg/errors"
	"github.com/skyenginedb/skyengine/pkg/journal/eventlog"
	"github.com/skyenginedb/skyengine/pkg/model"
	"github.com/skyenginedb/skyengine/pkg/queryast"
	"github.com/skyenginedb/skyengine/pkg/types"
)

// CreateSpace implements spec §4.6's Space.create.
func (e *Engine) CreateSpace(req queryast.CreateSpace) error {
	if err := validateIdentifier(req.Name); err != nil {
		return skyerrors.NewQueryError(skyerrors.KindQExecDdlInvalidProperties, err.Error())
	}
	env := eventlog.Env(req.Props)

	lock := e.lockFor("") // idx_spaces write lock; a single global lock scopes creation
	lock.Lock()
	defer lock.Unlock()

	if ref := e.GNS.IdxSpaces.Get(req.Name); ref.Found {
		if req.IfNotExists {
			return nil
		}
		return skyerrors.NewQueryError(skyerrors.KindQExecDdlObjectAlreadyExists, "space "+req.Name+" already exists")
	}

	id := types.NewUUID()
	dir := filepath.Join(e.DataRoot, "spaces", req.Name+"-"+id.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return skyerrors.NewStorageError(skyerrors.KindInternalDecodeStructureIllegalData, "create space directory", err)
	}

	payload := eventlog.CreateSpacePayload{UUID: id, Name: req.Name, Env: env}
	if err := e.gnsJournal.AppendEvent(eventlog.TagCreateSpace, eventlog.EncodePayload(payload.Encode())); err != nil {
		os.RemoveAll(dir) // schedule-equivalent: best-effort cleanup on append failure (spec §4.6 step 3)
		return skyerrors.NewTxnError("CreateSpace", err)
	}

	space := model.NewSpace(id, req.Name, envToProps(env))
	e.GNS.IdxSpaces.Insert(req.Name, space)
	return nil
}

// AlterSpace implements spec §4.6's Space.alter.
func (e *Engine) AlterSpace(req queryast.AlterSpace) error {
	env := eventlog.Env(req.UpdatedProps)

	ref := e.GNS.IdxSpaces.Get(req.Name)
	if !ref.Found {
		return skyerrors.NewQueryError(skyerrors.KindQExecObjectNotFound, "space "+req.Name+" not found")
	}

	lock := e.lockFor(req.Name)
	lock.Lock()
	defer lock.Unlock()

	payload := eventlog.AlterSpacePayload{Name: req.Name, Env: env}
	if err := e.gnsJournal.AppendEvent(eventlog.TagAlterSpace, eventlog.EncodePayload(payload.Encode())); err != nil {
		return skyerrors.NewTxnError("AlterSpace", err)
	}
	ref.Value.ApplyEnvPatch(envToProps(env))
	return nil
}

// DropSpace implements spec §4.6's Space.drop.
func (e *Engine) DropSpace(req queryast.DropSpace) error {
	ref := e.GNS.IdxSpaces.Get(req.Name)
	if !ref.Found {
		if req.IfExists {
			return nil
		}
		return skyerrors.NewQueryError(skyerrors.KindQExecObjectNotFound, "space "+req.Name+" not found")
	}
	if req.Name == "default" {
		return skyerrors.NewQueryError(skyerrors.KindQExecDdlNotEmpty, "the default space cannot be dropped")
	}

	lock := e.lockFor(req.Name)
	lock.Lock()
	defer lock.Unlock()

	if !req.Force && ref.Value.ModelCount() > 0 {
		return skyerrors.NewQueryError(skyerrors.KindQExecDdlNotEmpty, "space "+req.Name+" still has models")
	}

	if req.Force {
		for _, mname := range ref.Value.ModelNames() {
			e.GNS.IdxModels.Remove(model.ModelKey{Space: req.Name, Name: mname})
		}
	}

	payload := eventlog.DropSpacePayload{Name: req.Name}
	if err := e.gnsJournal.AppendEvent(eventlog.TagDropSpace, eventlog.EncodePayload(payload.Encode())); err != nil {
		return skyerrors.NewTxnError("DropSpace", err)
	}

	e.GNS.IdxSpaces.Remove(req.Name)
	dir := filepath.Join(e.DataRoot, "spaces", req.Name+"-"+ref.Value.UUID.String())
	os.RemoveAll(dir) // best-effort; the task manager would own retryable deletion in a fuller wiring
	return nil
}
