// Package eventlog implements the event log journal adapter used for GNS
// (global namespace) transactions: each event is a single checksummed
// payload, decoded via a tag-indexed registry of decode functions (spec
// §4.3).
package eventlog

import (
	"encoding/binary"
	"hash/crc64"

	skyerrors "github.com/skyenginedb/skyengine/pkg/errors"
	"github.com/skyenginedb/skyengine/pkg/journal"
	"github.com/skyenginedb/skyengine/pkg/sdss"
)

var crcTable = crc64.MakeTable(crc64.ISO)

// GNS event tags (spec §4.3), starting at journal.FirstAdapterTag.
const (
	TagCreateSpace byte = iota + journal.FirstAdapterTag
	TagAlterSpace
	TagDropSpace
	TagCreateModel
	TagAlterModelAdd
	TagAlterModelRemove
	TagAlterModelUpdate
	TagDropModel
)

// DecodeFn decodes and applies one event's payload against the GNS state
// implementation owns. It returns an error if the payload is malformed.
type DecodeFn func(payload []byte) error

// Adapter is the event-log journal.Adapter: a registry of tag -> DecodeFn.
type Adapter struct {
	registry map[byte]DecodeFn
}

// NewAdapter builds an empty adapter; callers register decode functions for
// each GNS event tag they support via Register.
func NewAdapter() *Adapter {
	return &Adapter{registry: make(map[byte]DecodeFn)}
}

// Register installs the decode function for a GNS event tag.
func (a *Adapter) Register(tag byte, fn DecodeFn) {
	a.registry[tag] = fn
}

// DecodeApply implements journal.Adapter: reads the
// [checksum][payload_len][payload] frame, verifies the checksum, then
// dispatches to the registered decode function for tag.
func (a *Adapter) DecodeApply(r *sdss.TrackedReader, tag byte) error {
	checksum, err := r.ReadU64LE()
	if err != nil {
		return err
	}
	payloadLen, err := r.ReadU64LE()
	if err != nil {
		return err
	}
	payload, err := r.ReadBlock(int(payloadLen))
	if err != nil {
		return err
	}

	if computeChecksum(payloadLen, payload) != checksum {
		return skyerrors.NewStorageError(skyerrors.KindRawJournalDecodeCorruptionInBatchMeta, "event log checksum mismatch", nil)
	}

	fn, ok := a.registry[tag]
	if !ok {
		return skyerrors.NewStorageError(skyerrors.KindInternalDecodeStructureIllegalData, "unknown GNS event tag", nil)
	}
	return fn(payload)
}

// computeChecksum is CRC-64 over payload_len.to_le_bytes() || payload,
// matching spec §4.3 exactly.
func computeChecksum(payloadLen uint64, payload []byte) uint64 {
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], payloadLen)
	c := crc64.Update(0, crcTable, lenBuf[:])
	c = crc64.Update(c, crcTable, payload)
	return c
}

// EncodePayload wraps a payload in the [checksum][payload_len][payload]
// frame ready to be passed as the writeBody callback to journal.AppendEvent.
func EncodePayload(payload []byte) func(w *sdss.TrackedWriter) error {
	return func(w *sdss.TrackedWriter) error {
		payloadLen := uint64(len(payload))
		checksum := computeChecksum(payloadLen, payload)
		if err := w.WriteU64LE(checksum); err != nil {
			return err
		}
		if err := w.WriteU64LE(payloadLen); err != nil {
			return err
		}
		_, err := w.TrackedWrite(payload)
		return err
	}
}
