package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDatacellAccessorsAndEquality(t *testing.T) {
	b := NewBool(true)
	v, ok := b.Bool()
	assert.True(t, ok)
	assert.True(t, v)

	u := NewUint(65536, SelectorUInt32)
	uv, ok := u.Uint()
	assert.True(t, ok)
	assert.Equal(t, uint64(65536), uv)

	s := NewStr("pwd123456")
	sv, ok := s.Str()
	assert.True(t, ok)
	assert.Equal(t, "pwd123456", sv)

	assert.True(t, NewBool(true).Equal(NewBool(true)))
	assert.False(t, NewBool(true).Equal(NewBool(false)))
	assert.True(t, NewStr("a").Equal(NewStr("a")))
	assert.False(t, NewStr("a").Equal(NewStr("b")))
}

func TestDatacellNull(t *testing.T) {
	n := NewNull(TagStr)
	assert.True(t, n.IsNull())
	_, ok := n.Str()
	assert.False(t, ok)
}

func TestDatacellListEquality(t *testing.T) {
	a := NewList([]Datacell{NewUint(1, SelectorUInt64), NewUint(2, SelectorUInt64)})
	b := NewList([]Datacell{NewUint(1, SelectorUInt64), NewUint(2, SelectorUInt64)})
	c := NewList([]Datacell{NewUint(1, SelectorUInt64)})

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}

func TestTagClassRankOrdering(t *testing.T) {
	// spec §3: List > Str > Bin > Float > SignedInt > UnsignedInt > Bool
	assert.Greater(t, ClassList.Rank(), ClassStr.Rank())
	assert.Greater(t, ClassStr.Rank(), ClassBin.Rank())
	assert.Greater(t, ClassBin.Rank(), ClassFloat.Rank())
	assert.Greater(t, ClassFloat.Rank(), ClassSignedInt.Rank())
	assert.Greater(t, ClassSignedInt.Rank(), ClassUnsignedInt.Rank())
	assert.Greater(t, ClassUnsignedInt.Rank(), ClassBool.Rank())
}

func TestUniqueOf(t *testing.T) {
	assert.Equal(t, UniqueUnsignedInt, UniqueOf(ClassUnsignedInt))
	assert.Equal(t, UniqueIllegal, UniqueOf(ClassFloat))
	assert.Equal(t, UniqueIllegal, UniqueOf(ClassList))
	assert.False(t, TagFloat64.CanBePrimaryKey())
	assert.False(t, TagList.CanBePrimaryKey())
	assert.True(t, TagStr.CanBePrimaryKey())
}
