package types

// TagClass is the coarse value class of a Datacell. The order declared here
// is the single canonical ordering used everywhere classes are compared
// (ALTER widen/narrow checks, dispatch-table construction) — see
// DESIGN.md's Open Question decision on canonical tag-class ordering.
type TagClass uint8

const (
	ClassBool TagClass = iota
	ClassUnsignedInt
	ClassSignedInt
	ClassFloat
	ClassBin
	ClassStr
	ClassList
)

// classRank gives List the highest rank and Bool the lowest, matching
// "List > Str > Bin > Float > SignedInt > UnsignedInt > Bool" from spec §3.
var classRank = map[TagClass]int{
	ClassBool:        0,
	ClassUnsignedInt: 1,
	ClassSignedInt:   2,
	ClassFloat:       3,
	ClassBin:         4,
	ClassStr:         5,
	ClassList:        6,
}

// Rank returns c's position in the canonical class ordering; higher is
// "greater".
func (c TagClass) Rank() int { return classRank[c] }

func (c TagClass) String() string {
	switch c {
	case ClassBool:
		return "Bool"
	case ClassUnsignedInt:
		return "UnsignedInt"
	case ClassSignedInt:
		return "SignedInt"
	case ClassFloat:
		return "Float"
	case ClassBin:
		return "Bin"
	case ClassStr:
		return "Str"
	case ClassList:
		return "List"
	default:
		return "Unknown"
	}
}

// Selector refines a TagClass with a concrete width/shape.
type Selector uint8

const (
	SelectorUInt8 Selector = iota
	SelectorUInt16
	SelectorUInt32
	SelectorUInt64
	SelectorSInt8
	SelectorSInt16
	SelectorSInt32
	SelectorSInt64
	SelectorFloat32
	SelectorFloat64
	SelectorBin
	SelectorStr
	SelectorList
)

// selectorWidth orders integer/float selectors within their class for the
// widening check used by ALTER (spec §4.7): a higher value is "wider".
var selectorWidth = map[Selector]int{
	SelectorUInt8:   0,
	SelectorUInt16:  1,
	SelectorUInt32:  2,
	SelectorUInt64:  3,
	SelectorSInt8:   0,
	SelectorSInt16:  1,
	SelectorSInt32:  2,
	SelectorSInt64:  3,
	SelectorFloat32: 0,
	SelectorFloat64: 1,
}

// Width returns s's relative width within its class, for widening checks.
func (s Selector) Width() int { return selectorWidth[s] }

// Unique collapses a TagClass down to the set legal for a primary key.
// Float and List can never be primary keys (spec §3).
type Unique uint8

const (
	UniqueBool Unique = iota
	UniqueUnsignedInt
	UniqueSignedInt
	UniqueBin
	UniqueStr
	UniqueIllegal
)

// UniqueOf maps a TagClass to its Unique collapse.
func UniqueOf(c TagClass) Unique {
	switch c {
	case ClassBool:
		return UniqueBool
	case ClassUnsignedInt:
		return UniqueUnsignedInt
	case ClassSignedInt:
		return UniqueSignedInt
	case ClassBin:
		return UniqueBin
	case ClassStr:
		return UniqueStr
	default:
		return UniqueIllegal
	}
}

// Tag is a value type descriptor: a class, a selector refining that class,
// and the class's primary-key collapse.
type Tag struct {
	Class    TagClass
	Selector Selector
	Unique   Unique
}

// NewTag builds a Tag, deriving Unique from Class.
func NewTag(class TagClass, selector Selector) Tag {
	return Tag{Class: class, Selector: selector, Unique: UniqueOf(class)}
}

var (
	TagBool    = NewTag(ClassBool, 0)
	TagUInt8   = NewTag(ClassUnsignedInt, SelectorUInt8)
	TagUInt16  = NewTag(ClassUnsignedInt, SelectorUInt16)
	TagUInt32  = NewTag(ClassUnsignedInt, SelectorUInt32)
	TagUInt64  = NewTag(ClassUnsignedInt, SelectorUInt64)
	TagSInt8   = NewTag(ClassSignedInt, SelectorSInt8)
	TagSInt16  = NewTag(ClassSignedInt, SelectorSInt16)
	TagSInt32  = NewTag(ClassSignedInt, SelectorSInt32)
	TagSInt64  = NewTag(ClassSignedInt, SelectorSInt64)
	TagFloat32 = NewTag(ClassFloat, SelectorFloat32)
	TagFloat64 = NewTag(ClassFloat, SelectorFloat64)
	TagBin     = NewTag(ClassBin, SelectorBin)
	TagStr     = NewTag(ClassStr, SelectorStr)
	TagList    = NewTag(ClassList, SelectorList)
)

// CanBePrimaryKey reports whether t's class may back a primary index key.
func (t Tag) CanBePrimaryKey() bool {
	return t.Unique != UniqueIllegal
}
