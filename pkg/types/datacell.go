package types

import (
	"fmt"
	"sync"
)

// Datacell is a tagged, possibly-null value carrying one of the seven
// TagClasses declared in Tag. Strings and binaries own their backing
// allocation; lists own a mutex-guarded slice of child cells, mirroring the
// original's RwLock<Vec<Datacell>> (spec §3).
type Datacell struct {
	Tag  Tag
	init bool // false = null

	boolVal  bool
	uintVal  uint64
	sintVal  int64
	floatVal float64
	binVal   []byte
	strVal   string

	listMu  *sync.RWMutex
	listVal []Datacell
}

// NewNull builds a null Datacell of the given tag.
func NewNull(tag Tag) Datacell {
	return Datacell{Tag: tag, init: false}
}

// NewBool builds an initialized bool cell.
func NewBool(v bool) Datacell {
	return Datacell{Tag: TagBool, init: true, boolVal: v}
}

// NewUint builds an initialized unsigned-int cell with the given selector.
func NewUint(v uint64, sel Selector) Datacell {
	return Datacell{Tag: NewTag(ClassUnsignedInt, sel), init: true, uintVal: v}
}

// NewSint builds an initialized signed-int cell with the given selector.
func NewSint(v int64, sel Selector) Datacell {
	return Datacell{Tag: NewTag(ClassSignedInt, sel), init: true, sintVal: v}
}

// NewFloat builds an initialized float cell with the given selector.
func NewFloat(v float64, sel Selector) Datacell {
	return Datacell{Tag: NewTag(ClassFloat, sel), init: true, floatVal: v}
}

// NewBin builds an initialized binary cell, copying b.
func NewBin(b []byte) Datacell {
	cp := make([]byte, len(b))
	copy(cp, b)
	return Datacell{Tag: TagBin, init: true, binVal: cp}
}

// NewStr builds an initialized string cell.
func NewStr(s string) Datacell {
	return Datacell{Tag: TagStr, init: true, strVal: s}
}

// NewList builds an initialized list cell owning its own elements.
func NewList(elems []Datacell) Datacell {
	cp := make([]Datacell, len(elems))
	copy(cp, elems)
	return Datacell{Tag: TagList, init: true, listMu: &sync.RWMutex{}, listVal: cp}
}

// IsNull reports whether the cell carries no value.
func (d Datacell) IsNull() bool { return !d.init }

// Bool returns the bool payload; ok is false if the cell isn't an
// initialized bool.
func (d Datacell) Bool() (v bool, ok bool) {
	if !d.init || d.Tag.Class != ClassBool {
		return false, false
	}
	return d.boolVal, true
}

// Uint returns the unsigned-int payload.
func (d Datacell) Uint() (v uint64, ok bool) {
	if !d.init || d.Tag.Class != ClassUnsignedInt {
		return 0, false
	}
	return d.uintVal, true
}

// Sint returns the signed-int payload.
func (d Datacell) Sint() (v int64, ok bool) {
	if !d.init || d.Tag.Class != ClassSignedInt {
		return 0, false
	}
	return d.sintVal, true
}

// Float returns the float payload.
func (d Datacell) Float() (v float64, ok bool) {
	if !d.init || d.Tag.Class != ClassFloat {
		return 0, false
	}
	return d.floatVal, true
}

// Bin returns the binary payload.
func (d Datacell) Bin() (v []byte, ok bool) {
	if !d.init || d.Tag.Class != ClassBin {
		return nil, false
	}
	return d.binVal, true
}

// Str returns the string payload.
func (d Datacell) Str() (v string, ok bool) {
	if !d.init || d.Tag.Class != ClassStr {
		return "", false
	}
	return d.strVal, true
}

// List returns a snapshot copy of the list elements under the list's own
// read lock.
func (d Datacell) List() (v []Datacell, ok bool) {
	if !d.init || d.Tag.Class != ClassList {
		return nil, false
	}
	d.listMu.RLock()
	defer d.listMu.RUnlock()
	cp := make([]Datacell, len(d.listVal))
	copy(cp, d.listVal)
	return cp, true
}

// Equal reports deep value equality, used by primary-key comparisons and
// tests.
func (d Datacell) Equal(other Datacell) bool {
	if d.init != other.init || d.Tag != other.Tag {
		return false
	}
	if !d.init {
		return true
	}
	switch d.Tag.Class {
	case ClassBool:
		return d.boolVal == other.boolVal
	case ClassUnsignedInt:
		return d.uintVal == other.uintVal
	case ClassSignedInt:
		return d.sintVal == other.sintVal
	case ClassFloat:
		return d.floatVal == other.floatVal
	case ClassBin:
		if len(d.binVal) != len(other.binVal) {
			return false
		}
		for i := range d.binVal {
			if d.binVal[i] != other.binVal[i] {
				return false
			}
		}
		return true
	case ClassStr:
		return d.strVal == other.strVal
	case ClassList:
		a, _ := d.List()
		b, _ := other.List()
		if len(a) != len(b) {
			return false
		}
		for i := range a {
			if !a[i].Equal(b[i]) {
				return false
			}
		}
		return true
	}
	return false
}

func (d Datacell) String() string {
	if !d.init {
		return "null"
	}
	switch d.Tag.Class {
	case ClassBool:
		return fmt.Sprintf("%v", d.boolVal)
	case ClassUnsignedInt:
		return fmt.Sprintf("%d", d.uintVal)
	case ClassSignedInt:
		return fmt.Sprintf("%d", d.sintVal)
	case ClassFloat:
		return fmt.Sprintf("%g", d.floatVal)
	case ClassBin:
		return fmt.Sprintf("%x", d.binVal)
	case ClassStr:
		return d.strVal
	case ClassList:
		return "[list]"
	}
	return "?"
}
