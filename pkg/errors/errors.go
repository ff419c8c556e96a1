// Package errors defines the typed error taxonomy shared across the
// storage, transaction, and query execution layers.
package errors

import (
	"errors"
	"fmt"
)

// Subsystem labels the origin of an error for logging and metrics grouping.
type Subsystem string

const (
	SubsystemStorage Subsystem = "storage"
	SubsystemTxn     Subsystem = "txn"
	SubsystemNetwork Subsystem = "network"
	SubsystemInit    Subsystem = "init"
	SubsystemConfig  Subsystem = "config"
	SubsystemQuery   Subsystem = "query"
)

// StorageError wraps a failure surfaced by the SDSS header, raw journal, or
// an adapter, identified by a Kind constant.
type StorageError struct {
	Kind    string
	Message string
	Cause   error
}

func (e *StorageError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("storage: %s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("storage: %s: %s", e.Kind, e.Message)
}

func (e *StorageError) Unwrap() error { return e.Cause }

// NewStorageError builds a StorageError for the given kind.
func NewStorageError(kind, message string, cause error) *StorageError {
	return &StorageError{Kind: kind, Message: message, Cause: cause}
}

// Storage error kinds (spec §7, Storage bullet).
const (
	KindHeaderDecodeCorruptedHeader           = "HeaderDecodeCorruptedHeader"
	KindHeaderDecodeVersionMismatch           = "HeaderDecodeVersionMismatch"
	KindInternalDecodeStructureCorruptedData  = "InternalDecodeStructureCorruptedPayload"
	KindInternalDecodeStructureIllegalData    = "InternalDecodeStructureIllegalData"
	KindRawJournalDecodeCorruptionInBatchMeta = "RawJournalDecodeCorruptionInBatchMetadata"
	KindRawJournalDecodeBatchContentsMismatch = "RawJournalDecodeBatchContentsMismatch"
	KindRawJournalDecodeBatchIntegrityFailure = "RawJournalDecodeBatchIntegrityFailure"
	KindRawJournalRuntimeCriticalLwtHBFail    = "RawJournalRuntimeCriticalLwtHBFail"
	KindDataBatchRecoveryFailStageOne         = "DataBatchRecoveryFailStageOne"
)

// TxnError wraps a journal append/commit failure surfaced to a DDL/DML
// caller.
type TxnError struct {
	Op    string
	Cause error
}

func (e *TxnError) Error() string {
	return fmt.Sprintf("txn: %s failed: %v", e.Op, e.Cause)
}

func (e *TxnError) Unwrap() error { return e.Cause }

// NewTxnError builds a TxnError for the given operation.
func NewTxnError(op string, cause error) *TxnError {
	return &TxnError{Op: op, Cause: cause}
}

// QueryError is returned by the DDL/DML execution core. Kind identifies the
// specific failure per spec §7's QueryError list.
type QueryError struct {
	Kind    string
	Message string
}

func (e *QueryError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("query: %s", e.Kind)
	}
	return fmt.Sprintf("query: %s: %s", e.Kind, e.Message)
}

// NewQueryError builds a QueryError for the given kind.
func NewQueryError(kind, message string) *QueryError {
	return &QueryError{Kind: kind, Message: message}
}

// Query error kinds (spec §7, QueryError bullet).
const (
	KindQExecDdlObjectAlreadyExists   = "QExecDdlObjectAlreadyExists"
	KindQExecObjectNotFound           = "QExecObjectNotFound"
	KindQExecUnknownField             = "QExecUnknownField"
	KindQExecDdlModelAlterIllegal     = "QExecDdlModelAlterIllegal"
	KindQExecDdlInvalidTypeDefinition = "QExecDdlInvalidTypeDefinition"
	KindQExecDdlInvalidProperties     = "QExecDdlInvalidProperties"
	KindQExecDdlNotEmpty              = "QExecDdlNotEmpty"
	KindQExecDmlRowNotFound           = "QExecDmlRowNotFound"
	KindQExecDmlValidationError       = "QExecDmlValidationError"
	KindQExecNeedLock                 = "QExecNeedLock"
	KindSysOutOfMemory                = "SysOutOfMemory"
)

// IsKind reports whether err is a *QueryError or *StorageError carrying the
// given kind.
func IsKind(err error, kind string) bool {
	var qe *QueryError
	if errors.As(err, &qe) {
		return qe.Kind == kind
	}
	var se *StorageError
	if errors.As(err, &se) {
		return se.Kind == kind
	}
	return false
}

// Sentinel errors for simple invariant violations that don't need a
// per-kind struct.
var (
	ErrJournalClosed    = errors.New("journal: driver is closed")
	ErrJournalNotOpen   = errors.New("journal: driver has not been opened")
	ErrShardLockNesting = errors.New("skymap: attempted to nest two shard locks")
	ErrEmptyIdentifier  = errors.New("identifier must not be empty")
	ErrIdentifierTooLong = errors.New("identifier exceeds 64 bytes")
)

// ConfigError reports an out-of-range or malformed configuration value.
type ConfigError struct {
	Field string
	Cause error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %v", e.Field, e.Cause)
}

func (e *ConfigError) Unwrap() error { return e.Cause }

// NewConfigError builds a ConfigError for the given field.
func NewConfigError(field string, cause error) *ConfigError {
	return &ConfigError{Field: field, Cause: cause}
}
