package batch

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	skyerrors "github.com/skyenginedb/skyengine/pkg/errors"
	"github.com/skyenginedb/skyengine/pkg/sdss"
	"github.com/skyenginedb/skyengine/pkg/types"
)

var testFields = []NamedField{
	{Name: "val", Field: types.NewScalarField(types.TagStr, false)},
}

func testSchemaAt(uint64) (types.Tag, []NamedField, error) {
	return types.TagUInt64, testFields, nil
}

func testDeltas() []Delta {
	return []Delta{
		{Version: 1, Kind: EventInsert, PK: types.NewUint(1, types.SelectorUInt64), Values: map[string]types.Datacell{"val": types.NewStr("a")}},
		{Version: 2, Kind: EventInsert, PK: types.NewUint(2, types.SelectorUInt64), Values: map[string]types.Datacell{"val": types.NewStr("b")}},
		{Version: 3, Kind: EventUpdate, PK: types.NewUint(1, types.SelectorUInt64), Values: map[string]types.Datacell{"val": types.NewStr("a-updated")}},
		{Version: 4, Kind: EventDelete, PK: types.NewUint(2, types.SelectorUInt64)},
	}
}

func encodeBatch(t *testing.T, schemaVersion uint64, deltas []Delta, skip func(Delta) bool) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := sdss.NewTrackedWriter(&buf, nil)
	require.NoError(t, WriteBatch(schemaVersion, types.TagUInt64, testFields, deltas, skip)(w))
	require.NoError(t, w.Flush())
	return buf.Bytes()
}

func TestBatchRoundTrip(t *testing.T) {
	deltas := testDeltas()
	encoded := encodeBatch(t, 7, deltas, nil)

	r := sdss.NewTrackedReader(bytes.NewReader(encoded))
	decoded, err := DecodeBatch(r, testSchemaAt)
	require.NoError(t, err)
	require.Len(t, decoded, len(deltas))

	for i, d := range deltas {
		assert.Equal(t, d.Kind, decoded[i].Kind)
		assert.True(t, d.PK.Equal(decoded[i].PK))
		if d.Kind != EventDelete {
			assert.True(t, d.Values["val"].Equal(decoded[i].Values["val"]))
		}
	}
}

// TestBatchStaleDeltaElision exercises spec §8's stale-delta elision
// property: a skip predicate applied at write time removes events from the
// batch entirely, and decode sees exactly the surviving ones in order.
func TestBatchStaleDeltaElision(t *testing.T) {
	deltas := testDeltas()
	skip := func(d Delta) bool { return d.Version == 1 } // elide the first insert as superseded

	encoded := encodeBatch(t, 7, deltas, skip)
	r := sdss.NewTrackedReader(bytes.NewReader(encoded))
	decoded, err := DecodeBatch(r, testSchemaAt)
	require.NoError(t, err)
	require.Len(t, decoded, len(deltas)-1)
	assert.True(t, decoded[0].PK.Equal(types.NewUint(2, types.SelectorUInt64)))
}

func TestBatchSchemaMetadataMismatchDetected(t *testing.T) {
	encoded := encodeBatch(t, 7, testDeltas(), nil)

	mismatchedSchema := func(uint64) (types.Tag, []NamedField, error) {
		// Resolver disagrees with what was actually written: wrong field count.
		return types.TagUInt64, append(testFields, NamedField{Name: "extra", Field: types.NewScalarField(types.TagStr, true)}), nil
	}

	r := sdss.NewTrackedReader(bytes.NewReader(encoded))
	_, err := DecodeBatch(r, mismatchedSchema)
	require.Error(t, err)
	assert.True(t, skyerrors.IsKind(err, skyerrors.KindRawJournalDecodeCorruptionInBatchMeta))
}

func TestBatchContentsMismatchOnCommitCountTamper(t *testing.T) {
	deltas := testDeltas()
	encoded := encodeBatch(t, 7, deltas, nil)

	// actual_commit_count is the u64 immediately before the trailing 8-byte
	// checksum.
	countOffset := len(encoded) - 16
	encoded[countOffset] ^= 0xFF

	r := sdss.NewTrackedReader(bytes.NewReader(encoded))
	_, err := DecodeBatch(r, testSchemaAt)
	require.Error(t, err)
	assert.True(t, skyerrors.IsKind(err, skyerrors.KindRawJournalDecodeBatchContentsMismatch))
}

func TestBatchIntegrityFailureOnEventMutation(t *testing.T) {
	deltas := testDeltas()
	encoded := encodeBatch(t, 7, deltas, nil)

	// Flip a bit in the last byte of the final event (the delete's
	// fixed-width primary key) without changing its length, so the event
	// count and actual_commit_count still agree but the checksum no longer
	// matches the mutated bytes.
	encoded[len(encoded)-16-1] ^= 0x01 // last byte of the final event's payload

	r := sdss.NewTrackedReader(bytes.NewReader(encoded))
	_, err := DecodeBatch(r, testSchemaAt)
	require.Error(t, err)
	assert.True(t, skyerrors.IsKind(err, skyerrors.KindRawJournalDecodeBatchIntegrityFailure))
}

func TestBatchEarlyExitRecoveryMarkerYieldsNoCommittedDeltas(t *testing.T) {
	var buf bytes.Buffer
	w := sdss.NewTrackedWriter(&buf, nil)
	w.ResetPartial()

	require.NoError(t, w.WriteU64LE(3)) // expected_commit_count: write was meant to carry 3 deltas
	require.NoError(t, w.WriteU64LE(7)) // schema_version
	require.NoError(t, w.WriteU8(byte(types.TagUInt64.Unique)))
	require.NoError(t, w.WriteU64LE(uint64(len(testFields))))

	// Only the first delta made it to disk before the write failed.
	require.NoError(t, writeEvent(w, types.TagUInt64, testFields, testDeltas()[0]))

	require.NoError(t, WriteRecoveryMarker(1)(w))
	require.NoError(t, w.Flush())

	r := sdss.NewTrackedReader(bytes.NewReader(buf.Bytes()))
	decoded, err := DecodeBatch(r, testSchemaAt)
	require.NoError(t, err)
	assert.Nil(t, decoded, "an early-exit batch must not be treated as committing any of its events")
}

func TestWriteBatchRejectsNullForNonNullableField(t *testing.T) {
	deltas := []Delta{
		{Kind: EventInsert, PK: types.NewUint(1, types.SelectorUInt64), Values: map[string]types.Datacell{}}, // "val" missing, field is non-nullable
	}
	var buf bytes.Buffer
	w := sdss.NewTrackedWriter(&buf, nil)
	err := WriteBatch(1, types.TagUInt64, testFields, deltas, nil)(w)
	assert.Error(t, err)
}
