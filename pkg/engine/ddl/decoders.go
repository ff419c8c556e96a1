package ddl

import (
	"github.com/skyenginedb/skyengine/pkg/journal/eventlog"
	"github.com/skyenginedb/skyengine/pkg/model"
	"github.com/skyenginedb/skyengine/pkg/types"
)

// registerDecoders wires every GNS event tag to a decode-and-apply function
// that mutates e.GNS directly. These run during journal replay on Open, so
// they must not themselves append further events.
func (e *Engine) registerDecoders() {
	e.adapter.Register(eventlog.TagCreateSpace, func(payload []byte) error {
		p, err := eventlog.DecodeCreateSpacePayload(payload)
		if err != nil {
			return err
		}
		space := model.NewSpace(p.UUID, p.Name, envToProps(p.Env))
		e.GNS.IdxSpaces.Insert(p.Name, space)
		return nil
	})

	e.adapter.Register(eventlog.TagAlterSpace, func(payload []byte) error {
		p, err := eventlog.DecodeAlterSpacePayload(payload)
		if err != nil {
			return err
		}
		ref := e.GNS.IdxSpaces.Get(p.Name)
		if !ref.Found {
			return nil
		}
		applyEnvPatch(ref.Value, p.Env)
		return nil
	})

	e.adapter.Register(eventlog.TagDropSpace, func(payload []byte) error {
		p, err := eventlog.DecodeDropSpacePayload(payload)
		if err != nil {
			return err
		}
		if sp, existed := e.GNS.IdxSpaces.Remove(p.Name); existed {
			for _, mname := range sp.ModelNames() {
				e.GNS.IdxModels.Remove(model.ModelKey{Space: p.Name, Name: mname})
			}
		}
		return nil
	})

	e.adapter.Register(eventlog.TagCreateModel, func(payload []byte) error {
		p, err := eventlog.DecodeCreateModelPayload(payload)
		if err != nil {
			return err
		}
		return e.applyCreateModel(p)
	})

	e.adapter.Register(eventlog.TagAlterModelAdd, func(payload []byte) error {
		p, err := eventlog.DecodeAlterModelAddPayload(payload)
		if err != nil {
			return err
		}
		return e.applyAlterAdd(p)
	})

	e.adapter.Register(eventlog.TagAlterModelRemove, func(payload []byte) error {
		p, err := eventlog.DecodeAlterModelRemovePayload(payload)
		if err != nil {
			return err
		}
		return e.applyAlterRemove(p)
	})

	e.adapter.Register(eventlog.TagAlterModelUpdate, func(payload []byte) error {
		p, err := eventlog.DecodeAlterModelUpdatePayload(payload)
		if err != nil {
			return err
		}
		return e.applyAlterUpdate(p)
	})

	e.adapter.Register(eventlog.TagDropModel, func(payload []byte) error {
		p, err := eventlog.DecodeDropModelPayload(payload)
		if err != nil {
			return err
		}
		e.GNS.IdxModels.Remove(model.ModelKey{Space: p.Space, Name: p.Name})
		if ref := e.GNS.IdxSpaces.Get(p.Space); ref.Found {
			ref.Value.RemoveModel(p.Name)
		}
		return nil
	})
}

func envToProps(env eventlog.Env) map[string]types.Datacell {
	out := make(map[string]types.Datacell, len(env))
	for k, v := range env {
		out[k] = v
	}
	return out
}

func applyEnvPatch(s *model.Space, env eventlog.Env) {
	s.ApplyEnvPatch(envToProps(env))
}

func (e *Engine) applyCreateModel(p eventlog.CreateModelPayload) error {
	fields := types.NewFieldSet()
	var pkTag types.Tag
	for _, f := range p.Fields {
		field := types.Field{Layers: f.Layers, Nullable: f.Nullable}
		if f.Name == p.PKName {
			if len(f.Layers) > 0 {
				pkTag = f.Layers[0].Tag
			}
			continue
		}
		fields.Set(f.Name, field)
	}
	m := model.NewModel(p.UUID, p.PKName, pkTag, fields)
	e.GNS.IdxModels.Insert(model.ModelKey{Space: p.Space, Name: p.Name}, m)
	if ref := e.GNS.IdxSpaces.Get(p.Space); ref.Found {
		ref.Value.AddModel(p.Name)
	}
	return nil
}

func (e *Engine) applyAlterAdd(p eventlog.AlterModelAddPayload) error {
	ref := e.GNS.IdxModels.Get(model.ModelKey{Space: p.Space, Name: p.Name})
	if !ref.Found {
		return nil
	}
	for _, f := range p.Fields {
		ref.Value.Fields.Set(f.Name, types.Field{Layers: f.Layers, Nullable: f.Nullable})
	}
	ref.Value.RecordSchemaVersion(ref.Value.Delta.BumpSchemaVersion())
	return nil
}

func (e *Engine) applyAlterRemove(p eventlog.AlterModelRemovePayload) error {
	ref := e.GNS.IdxModels.Get(model.ModelKey{Space: p.Space, Name: p.Name})
	if !ref.Found {
		return nil
	}
	for _, n := range p.FieldNames {
		ref.Value.Fields.Remove(n)
	}
	ref.Value.RecordSchemaVersion(ref.Value.Delta.BumpSchemaVersion())
	return nil
}

func (e *Engine) applyAlterUpdate(p eventlog.AlterModelUpdatePayload) error {
	ref := e.GNS.IdxModels.Get(model.ModelKey{Space: p.Space, Name: p.Name})
	if !ref.Found {
		return nil
	}
	for _, f := range p.Fields {
		ref.Value.Fields.Set(f.Name, types.Field{Layers: f.Layers, Nullable: f.Nullable})
	}
	ref.Value.RecordSchemaVersion(ref.Value.Delta.BumpSchemaVersion())
	return nil
}
