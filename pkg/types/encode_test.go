package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeCellScalars(t *testing.T) {
	cases := []struct {
		name string
		cell Datacell
		tag  Tag
	}{
		{"bool", NewBool(true), TagBool},
		{"uint", NewUint(1 << 40, SelectorUInt64), TagUInt64},
		{"sint", NewSint(-12345, SelectorSInt64), TagSInt64},
		{"float", NewFloat(3.14159, SelectorFloat64), TagFloat64},
		{"bin", NewBin([]byte{1, 2, 3, 4}), TagBin},
		{"str", NewStr("pwd234567"), TagStr},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			buf, err := EncodeCell(nil, c.cell, false)
			require.NoError(t, err)
			decoded, rest, err := DecodeCell(buf, c.tag)
			require.NoError(t, err)
			assert.Empty(t, rest)
			assert.True(t, c.cell.Equal(decoded))
		})
	}
}

func TestEncodeDecodeNullCell(t *testing.T) {
	n := NewNull(TagStr)
	buf, err := EncodeCell(nil, n, true)
	require.NoError(t, err)
	assert.Equal(t, []byte{DscrNull}, buf)

	decoded, rest, err := DecodeCell(buf, TagStr)
	require.NoError(t, err)
	assert.Empty(t, rest)
	assert.True(t, decoded.IsNull())
}

func TestEncodeCellNullRejectedWhenNotNullable(t *testing.T) {
	n := NewNull(TagStr)
	_, err := EncodeCell(nil, n, false)
	assert.Error(t, err)
}

func TestEncodeDecodeListCell(t *testing.T) {
	l := NewList([]Datacell{NewStr("a"), NewStr("b"), NewStr("c")})
	buf, err := EncodeCell(nil, l, false)
	require.NoError(t, err)

	decoded, rest, err := DecodeCell(buf, TagList)
	require.NoError(t, err)
	assert.Empty(t, rest)

	elems, ok := decoded.List()
	require.True(t, ok)
	require.Len(t, elems, 3)
	v0, _ := elems[0].Str()
	assert.Equal(t, "a", v0)
}

func TestPrimaryKeyRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		pk   Datacell
		tag  Tag
	}{
		{"uint", NewUint(42, SelectorUInt64), TagUInt64},
		{"sint", NewSint(-7, SelectorSInt64), TagSInt64},
		{"str", NewStr("sayan"), TagStr},
		{"bin", NewBin([]byte("binarykey")), TagBin},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			buf, err := EncodePrimaryKey(nil, c.pk)
			require.NoError(t, err)
			decoded, rest, err := DecodePrimaryKey(buf, c.tag)
			require.NoError(t, err)
			assert.Empty(t, rest)
			assert.True(t, c.pk.Equal(decoded))
		})
	}
}

func TestPrimaryKeyRejectsFloatAndList(t *testing.T) {
	_, err := EncodePrimaryKey(nil, NewFloat(1.0, SelectorFloat64))
	assert.Error(t, err)

	_, err = EncodePrimaryKey(nil, NewList(nil))
	assert.Error(t, err)
}

func TestDecodeLenPrefixedTruncated(t *testing.T) {
	_, _, err := DecodeLenPrefixed([]byte{1, 0, 0, 0, 0, 0, 0, 0}) // claims 1 byte, has 0
	assert.Error(t, err)
}
