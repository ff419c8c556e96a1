package sdss

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopSyncer struct{ synced int }

func (s *nopSyncer) Sync() error {
	s.synced++
	return nil
}

func TestTrackedWriterReaderRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	syncer := &nopSyncer{}
	w := NewTrackedWriter(&buf, syncer)

	require.NoError(t, w.WriteU64LE(42))
	require.NoError(t, w.WriteU8(7))
	_, err := w.TrackedWrite([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, w.FsyncAll())

	assert.Equal(t, 1, syncer.synced)
	assert.Equal(t, uint64(8+1+5), w.Cursor())

	r := NewTrackedReader(bytes.NewReader(buf.Bytes()))
	v, err := r.ReadU64LE()
	require.NoError(t, err)
	assert.Equal(t, uint64(42), v)

	b, err := r.ReadU8()
	require.NoError(t, err)
	assert.Equal(t, byte(7), b)

	block, err := r.ReadBlock(5)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(block))

	assert.Equal(t, w.Checksum(), r.Checksum())
}

func TestTrackedWriterResetPartial(t *testing.T) {
	var buf bytes.Buffer
	w := NewTrackedWriter(&buf, nil)

	_, err := w.TrackedWrite([]byte("abc"))
	require.NoError(t, err)
	first := w.ResetPartial()
	assert.NotZero(t, first)

	_, err = w.TrackedWrite([]byte("xyz"))
	require.NoError(t, err)
	second := w.Checksum()
	assert.NotEqual(t, first, second)
}

func TestTrackedReaderHasLeft(t *testing.T) {
	r := NewTrackedReader(bytes.NewReader([]byte("1234567890")))
	assert.True(t, r.HasLeft(10))
	assert.False(t, r.HasLeft(11))
}
