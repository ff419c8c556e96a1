package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsKindMatchesQueryAndStorageErrors(t *testing.T) {
	qe := NewQueryError(KindQExecObjectNotFound, "space missing")
	assert.True(t, IsKind(qe, KindQExecObjectNotFound))
	assert.False(t, IsKind(qe, KindQExecUnknownField))

	se := NewStorageError(KindHeaderDecodeCorruptedHeader, "bad magic", nil)
	assert.True(t, IsKind(se, KindHeaderDecodeCorruptedHeader))

	assert.False(t, IsKind(errors.New("plain"), KindQExecObjectNotFound))
}

func TestIsKindSeesThroughWrapping(t *testing.T) {
	qe := NewQueryError(KindQExecDmlRowNotFound, "no row")
	wrapped := fmt.Errorf("while handling request: %w", qe)
	assert.True(t, IsKind(wrapped, KindQExecDmlRowNotFound))
}

func TestStorageErrorUnwrapExposesCause(t *testing.T) {
	cause := errors.New("disk full")
	se := NewStorageError(KindInternalDecodeStructureIllegalData, "write failed", cause)
	assert.ErrorIs(t, se, cause)
	assert.Contains(t, se.Error(), "disk full")
}

func TestTxnErrorUnwrapExposesCause(t *testing.T) {
	cause := errors.New("append failed")
	te := NewTxnError("CreateSpace", cause)
	assert.ErrorIs(t, te, cause)
	assert.Contains(t, te.Error(), "CreateSpace")
}

func TestConfigErrorMessage(t *testing.T) {
	cause := errors.New("out of range")
	ce := NewConfigError("max_delta_size", cause)
	assert.ErrorIs(t, ce, cause)
	assert.Contains(t, ce.Error(), "max_delta_size")
}

func TestQueryErrorMessageOmitsColonWhenMessageEmpty(t *testing.T) {
	qe := NewQueryError(KindSysOutOfMemory, "")
	assert.Equal(t, "query: SysOutOfMemory", qe.Error())
}
