package types

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Discriminator bytes for the on-disk Datacell encoding shared by the
// batch journal event bodies (§4.4) and the GNS dictionary payloads
// (§6.2). Null uses a single zero byte in place of [dscr][body].
const (
	DscrNull byte = 0
	DscrBool byte = 1
	DscrUInt byte = 2
	DscrSInt byte = 3
	DscrFloat byte = 4
	DscrBin  byte = 5
	DscrStr  byte = 6
	DscrList byte = 7
)

func dscrOf(c TagClass) byte {
	switch c {
	case ClassBool:
		return DscrBool
	case ClassUnsignedInt:
		return DscrUInt
	case ClassSignedInt:
		return DscrSInt
	case ClassFloat:
		return DscrFloat
	case ClassBin:
		return DscrBin
	case ClassStr:
		return DscrStr
	case ClassList:
		return DscrList
	}
	return DscrNull
}

// EncodeLenPrefixed appends a u64-LE length prefix followed by b.
func EncodeLenPrefixed(dst []byte, b []byte) []byte {
	var lb [8]byte
	binary.LittleEndian.PutUint64(lb[:], uint64(len(b)))
	dst = append(dst, lb[:]...)
	dst = append(dst, b...)
	return dst
}

// DecodeLenPrefixed reads a u64-LE length prefix followed by that many
// bytes, returning the remainder of src.
func DecodeLenPrefixed(src []byte) (data []byte, rest []byte, err error) {
	if len(src) < 8 {
		return nil, nil, fmt.Errorf("types: short length prefix")
	}
	n := binary.LittleEndian.Uint64(src[0:8])
	src = src[8:]
	if uint64(len(src)) < n {
		return nil, nil, fmt.Errorf("types: truncated length-prefixed data")
	}
	return src[:n], src[n:], nil
}

// EncodeCell appends the on-disk representation of a cell to dst, per the
// dscr+body scheme in spec §4.4. A null cell where the field is nullable
// encodes as a single zero byte.
func EncodeCell(dst []byte, d Datacell, nullable bool) ([]byte, error) {
	if d.IsNull() {
		if !nullable {
			return nil, fmt.Errorf("types: cannot encode null for a non-nullable field")
		}
		return append(dst, DscrNull), nil
	}

	dst = append(dst, dscrOf(d.Tag.Class))
	switch d.Tag.Class {
	case ClassBool:
		v, _ := d.Bool()
		b := byte(0)
		if v {
			b = 1
		}
		dst = append(dst, b)
	case ClassUnsignedInt:
		v, _ := d.Uint()
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], v)
		dst = append(dst, buf[:]...)
	case ClassSignedInt:
		v, _ := d.Sint()
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], uint64(v))
		dst = append(dst, buf[:]...)
	case ClassFloat:
		v, _ := d.Float()
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		dst = append(dst, buf[:]...)
	case ClassBin:
		v, _ := d.Bin()
		dst = EncodeLenPrefixed(dst, v)
	case ClassStr:
		v, _ := d.Str()
		dst = EncodeLenPrefixed(dst, []byte(v))
	case ClassList:
		elems, _ := d.List()
		var lb [8]byte
		binary.LittleEndian.PutUint64(lb[:], uint64(len(elems)))
		dst = append(dst, lb[:]...)
		for _, e := range elems {
			var err error
			dst, err = EncodeCell(dst, e, false)
			if err != nil {
				return nil, err
			}
		}
	}
	return dst, nil
}

// DecodeCell reads one [dscr][body] (or a lone null byte) from src,
// returning the decoded cell and the remainder of src. fieldTag supplies the
// selector for numeric cells and the tag of a null cell.
func DecodeCell(src []byte, fieldTag Tag) (Datacell, []byte, error) {
	if len(src) < 1 {
		return Datacell{}, nil, fmt.Errorf("types: empty cell data")
	}
	dscr := src[0]
	rest := src[1:]

	if dscr == DscrNull {
		return NewNull(fieldTag), rest, nil
	}

	switch dscr {
	case DscrBool:
		if len(rest) < 1 {
			return Datacell{}, nil, fmt.Errorf("types: truncated bool cell")
		}
		return NewBool(rest[0] != 0), rest[1:], nil
	case DscrUInt:
		if len(rest) < 8 {
			return Datacell{}, nil, fmt.Errorf("types: truncated uint cell")
		}
		v := binary.LittleEndian.Uint64(rest[:8])
		return NewUint(v, fieldTag.Selector), rest[8:], nil
	case DscrSInt:
		if len(rest) < 8 {
			return Datacell{}, nil, fmt.Errorf("types: truncated sint cell")
		}
		v := int64(binary.LittleEndian.Uint64(rest[:8]))
		return NewSint(v, fieldTag.Selector), rest[8:], nil
	case DscrFloat:
		if len(rest) < 8 {
			return Datacell{}, nil, fmt.Errorf("types: truncated float cell")
		}
		v := math.Float64frombits(binary.LittleEndian.Uint64(rest[:8]))
		return NewFloat(v, fieldTag.Selector), rest[8:], nil
	case DscrBin:
		b, r2, err := DecodeLenPrefixed(rest)
		if err != nil {
			return Datacell{}, nil, err
		}
		return NewBin(b), r2, nil
	case DscrStr:
		b, r2, err := DecodeLenPrefixed(rest)
		if err != nil {
			return Datacell{}, nil, err
		}
		return NewStr(string(b)), r2, nil
	case DscrList:
		if len(rest) < 8 {
			return Datacell{}, nil, fmt.Errorf("types: truncated list cell")
		}
		n := binary.LittleEndian.Uint64(rest[:8])
		rest = rest[8:]
		elems := make([]Datacell, 0, n)
		for i := uint64(0); i < n; i++ {
			var elem Datacell
			var err error
			elem, rest, err = DecodeCell(rest, Tag{})
			if err != nil {
				return Datacell{}, nil, err
			}
			elems = append(elems, elem)
		}
		return NewList(elems), rest, nil
	default:
		return Datacell{}, nil, fmt.Errorf("types: unknown cell discriminator %d", dscr)
	}
}

// EncodePrimaryKey encodes a PK cell per spec §4.4: 8 LE bytes for
// UInt/SInt, length-prefixed bytes for Str/Bin.
func EncodePrimaryKey(dst []byte, pk Datacell) ([]byte, error) {
	switch pk.Tag.Unique {
	case UniqueUnsignedInt:
		v, _ := pk.Uint()
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], v)
		return append(dst, buf[:]...), nil
	case UniqueSignedInt:
		v, _ := pk.Sint()
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], uint64(v))
		return append(dst, buf[:]...), nil
	case UniqueBool:
		v, _ := pk.Bool()
		b := byte(0)
		if v {
			b = 1
		}
		return append(dst, b), nil
	case UniqueStr:
		v, _ := pk.Str()
		return EncodeLenPrefixed(dst, []byte(v)), nil
	case UniqueBin:
		v, _ := pk.Bin()
		return EncodeLenPrefixed(dst, v), nil
	default:
		return nil, fmt.Errorf("types: tag cannot be a primary key")
	}
}

// DecodePrimaryKey reads a PK cell encoded per EncodePrimaryKey, given the
// declared PK tag.
func DecodePrimaryKey(src []byte, pkTag Tag) (Datacell, []byte, error) {
	switch pkTag.Unique {
	case UniqueUnsignedInt:
		if len(src) < 8 {
			return Datacell{}, nil, fmt.Errorf("types: truncated pk (uint)")
		}
		v := binary.LittleEndian.Uint64(src[:8])
		return NewUint(v, pkTag.Selector), src[8:], nil
	case UniqueSignedInt:
		if len(src) < 8 {
			return Datacell{}, nil, fmt.Errorf("types: truncated pk (sint)")
		}
		v := int64(binary.LittleEndian.Uint64(src[:8]))
		return NewSint(v, pkTag.Selector), src[8:], nil
	case UniqueBool:
		if len(src) < 1 {
			return Datacell{}, nil, fmt.Errorf("types: truncated pk (bool)")
		}
		return NewBool(src[0] != 0), src[1:], nil
	case UniqueStr:
		b, rest, err := DecodeLenPrefixed(src)
		if err != nil {
			return Datacell{}, nil, err
		}
		return NewStr(string(b)), rest, nil
	case UniqueBin:
		b, rest, err := DecodeLenPrefixed(src)
		if err != nil {
			return Datacell{}, nil, err
		}
		return NewBin(b), rest, nil
	default:
		return Datacell{}, nil, fmt.Errorf("types: tag cannot be a primary key")
	}
}
