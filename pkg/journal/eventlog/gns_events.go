package eventlog

import (
	"encoding/binary"
	"fmt"

	"github.com/skyenginedb/skyengine/pkg/types"
)

// Env is a flat string->Datacell property dictionary, used for the `env`
// space property (spec §4.6 restricts space props to this single key).
type Env map[string]types.Datacell

func encodeEnv(dst []byte, env Env) []byte {
	var cb [8]byte
	binary.LittleEndian.PutUint64(cb[:], uint64(len(env)))
	dst = append(dst, cb[:]...)
	for k, v := range env {
		dst = types.EncodeLenPrefixed(dst, []byte(k))
		var err error
		dst, err = types.EncodeCell(dst, v, false)
		if err != nil {
			// env values are always initialized scalars in this codebase;
			// a null here indicates a caller bug, not a decode-time concern.
			panic(fmt.Sprintf("eventlog: env value for %q is null: %v", k, err))
		}
	}
	return dst
}

func decodeEnv(src []byte) (Env, []byte, error) {
	if len(src) < 8 {
		return nil, nil, fmt.Errorf("eventlog: truncated env count")
	}
	n := binary.LittleEndian.Uint64(src[:8])
	src = src[8:]
	env := make(Env, n)
	for i := uint64(0); i < n; i++ {
		var key []byte
		var err error
		key, src, err = types.DecodeLenPrefixed(src)
		if err != nil {
			return nil, nil, err
		}
		var cell types.Datacell
		cell, src, err = types.DecodeCell(src, types.Tag{})
		if err != nil {
			return nil, nil, err
		}
		env[string(key)] = cell
	}
	return env, src, nil
}

func encodeString(dst []byte, s string) []byte {
	return types.EncodeLenPrefixed(dst, []byte(s))
}

func encodeUUID(dst []byte, id types.UUID) []byte {
	b := id.Bytes()
	return append(dst, b[:]...)
}

func decodeUUID(src []byte) (types.UUID, []byte, error) {
	if len(src) < 16 {
		return types.UUID{}, nil, fmt.Errorf("eventlog: truncated uuid")
	}
	id, err := types.UUIDFromBytes(src[:16])
	if err != nil {
		return types.UUID{}, nil, err
	}
	return id, src[16:], nil
}

func decodeString(src []byte) (string, []byte, error) {
	b, rest, err := types.DecodeLenPrefixed(src)
	if err != nil {
		return "", nil, err
	}
	return string(b), rest, nil
}

// FieldDecl is one field declaration inside a CreateModel/AlterModel
// payload: name, its layer stack (outermost-first), and nullability.
type FieldDecl struct {
	Name     string
	Layers   []types.Layer
	Nullable bool
}

func encodeFieldDecl(dst []byte, f FieldDecl) []byte {
	dst = encodeString(dst, f.Name)
	dst = append(dst, byte(len(f.Layers)))
	for _, l := range f.Layers {
		dst = append(dst, byte(l.Tag.Class), byte(l.Tag.Selector))
	}
	nb := byte(0)
	if f.Nullable {
		nb = 1
	}
	return append(dst, nb)
}

func decodeFieldDecl(src []byte) (FieldDecl, []byte, error) {
	name, rest, err := decodeString(src)
	if err != nil {
		return FieldDecl{}, nil, err
	}
	if len(rest) < 1 {
		return FieldDecl{}, nil, fmt.Errorf("eventlog: truncated field layer count")
	}
	layerCount := int(rest[0])
	rest = rest[1:]
	layers := make([]types.Layer, 0, layerCount)
	for i := 0; i < layerCount; i++ {
		if len(rest) < 2 {
			return FieldDecl{}, nil, fmt.Errorf("eventlog: truncated layer")
		}
		class := types.TagClass(rest[0])
		sel := types.Selector(rest[1])
		layers = append(layers, types.Layer{Tag: types.NewTag(class, sel)})
		rest = rest[2:]
	}
	if len(rest) < 1 {
		return FieldDecl{}, nil, fmt.Errorf("eventlog: truncated nullable byte")
	}
	nullable := rest[0] != 0
	rest = rest[1:]
	return FieldDecl{Name: name, Layers: layers, Nullable: nullable}, rest, nil
}

func encodeFieldDecls(dst []byte, fields []FieldDecl) []byte {
	var cb [8]byte
	binary.LittleEndian.PutUint64(cb[:], uint64(len(fields)))
	dst = append(dst, cb[:]...)
	for _, f := range fields {
		dst = encodeFieldDecl(dst, f)
	}
	return dst
}

func decodeFieldDecls(src []byte) ([]FieldDecl, []byte, error) {
	if len(src) < 8 {
		return nil, nil, fmt.Errorf("eventlog: truncated field count")
	}
	n := binary.LittleEndian.Uint64(src[:8])
	src = src[8:]
	out := make([]FieldDecl, 0, n)
	for i := uint64(0); i < n; i++ {
		var f FieldDecl
		var err error
		f, src, err = decodeFieldDecl(src)
		if err != nil {
			return nil, nil, err
		}
		out = append(out, f)
	}
	return out, src, nil
}

// CreateSpacePayload is the CreateSpace GNS event body. UUID is generated
// once at create time and persisted in the event so replay reconstructs the
// same space identity (and on-disk directory name) rather than minting a
// fresh one every restart.
type CreateSpacePayload struct {
	UUID types.UUID
	Name string
	Env  Env
}

func (p CreateSpacePayload) Encode() []byte {
	dst := encodeUUID(nil, p.UUID)
	dst = encodeString(dst, p.Name)
	return encodeEnv(dst, p.Env)
}

// DecodeCreateSpacePayload decodes a CreateSpace event body.
func DecodeCreateSpacePayload(payload []byte) (CreateSpacePayload, error) {
	id, rest, err := decodeUUID(payload)
	if err != nil {
		return CreateSpacePayload{}, err
	}
	name, rest, err := decodeString(rest)
	if err != nil {
		return CreateSpacePayload{}, err
	}
	env, _, err := decodeEnv(rest)
	if err != nil {
		return CreateSpacePayload{}, err
	}
	return CreateSpacePayload{UUID: id, Name: name, Env: env}, nil
}

// AlterSpacePayload is the AlterSpace GNS event body: the patch to merge
// into the space's env dict (a key set to null clears it, per spec §4.6).
type AlterSpacePayload struct {
	Name string
	Env  Env
}

func (p AlterSpacePayload) Encode() []byte {
	dst := encodeString(nil, p.Name)
	return encodeEnv(dst, p.Env)
}

// DecodeAlterSpacePayload decodes an AlterSpace event body.
func DecodeAlterSpacePayload(payload []byte) (AlterSpacePayload, error) {
	name, rest, err := decodeString(payload)
	if err != nil {
		return AlterSpacePayload{}, err
	}
	env, _, err := decodeEnv(rest)
	if err != nil {
		return AlterSpacePayload{}, err
	}
	return AlterSpacePayload{Name: name, Env: env}, nil
}

// DropSpacePayload is the DropSpace GNS event body.
type DropSpacePayload struct {
	Name string
}

func (p DropSpacePayload) Encode() []byte {
	return encodeString(nil, p.Name)
}

// DecodeDropSpacePayload decodes a DropSpace event body.
func DecodeDropSpacePayload(payload []byte) (DropSpacePayload, error) {
	name, _, err := decodeString(payload)
	if err != nil {
		return DropSpacePayload{}, err
	}
	return DropSpacePayload{Name: name}, nil
}

// CreateModelPayload is the CreateModel GNS event body. UUID is generated
// once at create time and persisted so replay reconstructs the same model
// identity (and batch journal directory name) across restarts.
type CreateModelPayload struct {
	UUID   types.UUID
	Space  string
	Name   string
	PKName string
	Fields []FieldDecl
}

func (p CreateModelPayload) Encode() []byte {
	dst := encodeUUID(nil, p.UUID)
	dst = encodeString(dst, p.Space)
	dst = encodeString(dst, p.Name)
	dst = encodeString(dst, p.PKName)
	return encodeFieldDecls(dst, p.Fields)
}

// DecodeCreateModelPayload decodes a CreateModel event body.
func DecodeCreateModelPayload(payload []byte) (CreateModelPayload, error) {
	id, rest, err := decodeUUID(payload)
	if err != nil {
		return CreateModelPayload{}, err
	}
	space, rest, err := decodeString(rest)
	if err != nil {
		return CreateModelPayload{}, err
	}
	name, rest, err := decodeString(rest)
	if err != nil {
		return CreateModelPayload{}, err
	}
	pkName, rest, err := decodeString(rest)
	if err != nil {
		return CreateModelPayload{}, err
	}
	fields, _, err := decodeFieldDecls(rest)
	if err != nil {
		return CreateModelPayload{}, err
	}
	return CreateModelPayload{UUID: id, Space: space, Name: name, PKName: pkName, Fields: fields}, nil
}

// modelTargetPayload encodes the common (space, name) entity address shared
// by AlterModel*/DropModel bodies.
func encodeModelTarget(dst []byte, space, name string) []byte {
	dst = encodeString(dst, space)
	return encodeString(dst, name)
}

func decodeModelTarget(src []byte) (space, name string, rest []byte, err error) {
	space, rest, err = decodeString(src)
	if err != nil {
		return "", "", nil, err
	}
	name, rest, err = decodeString(rest)
	if err != nil {
		return "", "", nil, err
	}
	return space, name, rest, nil
}

// AlterModelAddPayload is the AlterModelAdd GNS event body.
type AlterModelAddPayload struct {
	Space, Name string
	Fields      []FieldDecl
}

func (p AlterModelAddPayload) Encode() []byte {
	dst := encodeModelTarget(nil, p.Space, p.Name)
	return encodeFieldDecls(dst, p.Fields)
}

// DecodeAlterModelAddPayload decodes an AlterModelAdd event body.
func DecodeAlterModelAddPayload(payload []byte) (AlterModelAddPayload, error) {
	space, name, rest, err := decodeModelTarget(payload)
	if err != nil {
		return AlterModelAddPayload{}, err
	}
	fields, _, err := decodeFieldDecls(rest)
	if err != nil {
		return AlterModelAddPayload{}, err
	}
	return AlterModelAddPayload{Space: space, Name: name, Fields: fields}, nil
}

// AlterModelRemovePayload is the AlterModelRemove GNS event body.
type AlterModelRemovePayload struct {
	Space, Name string
	FieldNames  []string
}

func (p AlterModelRemovePayload) Encode() []byte {
	dst := encodeModelTarget(nil, p.Space, p.Name)
	var cb [8]byte
	binary.LittleEndian.PutUint64(cb[:], uint64(len(p.FieldNames)))
	dst = append(dst, cb[:]...)
	for _, n := range p.FieldNames {
		dst = encodeString(dst, n)
	}
	return dst
}

// DecodeAlterModelRemovePayload decodes an AlterModelRemove event body.
func DecodeAlterModelRemovePayload(payload []byte) (AlterModelRemovePayload, error) {
	space, name, rest, err := decodeModelTarget(payload)
	if err != nil {
		return AlterModelRemovePayload{}, err
	}
	if len(rest) < 8 {
		return AlterModelRemovePayload{}, fmt.Errorf("eventlog: truncated field name count")
	}
	n := binary.LittleEndian.Uint64(rest[:8])
	rest = rest[8:]
	names := make([]string, 0, n)
	for i := uint64(0); i < n; i++ {
		var fn string
		fn, rest, err = decodeString(rest)
		if err != nil {
			return AlterModelRemovePayload{}, err
		}
		names = append(names, fn)
	}
	return AlterModelRemovePayload{Space: space, Name: name, FieldNames: names}, nil
}

// AlterModelUpdatePayload is the AlterModelUpdate GNS event body.
type AlterModelUpdatePayload struct {
	Space, Name string
	Fields      []FieldDecl
}

func (p AlterModelUpdatePayload) Encode() []byte {
	dst := encodeModelTarget(nil, p.Space, p.Name)
	return encodeFieldDecls(dst, p.Fields)
}

// DecodeAlterModelUpdatePayload decodes an AlterModelUpdate event body.
func DecodeAlterModelUpdatePayload(payload []byte) (AlterModelUpdatePayload, error) {
	space, name, rest, err := decodeModelTarget(payload)
	if err != nil {
		return AlterModelUpdatePayload{}, err
	}
	fields, _, err := decodeFieldDecls(rest)
	if err != nil {
		return AlterModelUpdatePayload{}, err
	}
	return AlterModelUpdatePayload{Space: space, Name: name, Fields: fields}, nil
}

// DropModelPayload is the DropModel GNS event body.
type DropModelPayload struct {
	Space, Name string
}

func (p DropModelPayload) Encode() []byte {
	return encodeModelTarget(nil, p.Space, p.Name)
}

// DecodeDropModelPayload decodes a DropModel event body.
func DecodeDropModelPayload(payload []byte) (DropModelPayload, error) {
	space, name, _, err := decodeModelTarget(payload)
	if err != nil {
		return DropModelPayload{}, err
	}
	return DropModelPayload{Space: space, Name: name}, nil
}
