package sdss

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	skyerrors "github.com/skyenginedb/skyengine/pkg/errors"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := NewHeader(7, 3, FileClassJournal, FileSpecifierGNSEventLog, 1, 123456789)
	encoded := h.Encode()

	decoded, err := Decode(encoded)
	require.NoError(t, err)

	assert.Equal(t, h.ServerVersion, decoded.ServerVersion)
	assert.Equal(t, h.DriverVersion, decoded.DriverVersion)
	assert.Equal(t, h.HostOS, decoded.HostOS)
	assert.Equal(t, h.HostArch, decoded.HostArch)
	assert.Equal(t, h.PointerWidth, decoded.PointerWidth)
	assert.Equal(t, h.Endian, decoded.Endian)
	assert.Equal(t, h.FileClass, decoded.FileClass)
	assert.Equal(t, h.FileSpecifier, decoded.FileSpecifier)
	assert.Equal(t, h.FileSpecifierVer, decoded.FileSpecifierVer)
	assert.Equal(t, h.CreatedEpochNanos, decoded.CreatedEpochNanos)
}

func TestHeaderDecode_CorruptedMagic(t *testing.T) {
	h := NewHeader(1, 1, FileClassJournal, FileSpecifierGNSEventLog, 1, 0)
	encoded := h.Encode()
	encoded[0] ^= 0xFF

	_, err := Decode(encoded)
	require.Error(t, err)
	assert.True(t, skyerrors.IsKind(err, skyerrors.KindHeaderDecodeCorruptedHeader))
}

func TestHeaderDecode_EnumByteOutOfRange(t *testing.T) {
	h := NewHeader(1, 1, FileClassJournal, FileSpecifierGNSEventLog, 1, 0)
	encoded := h.Encode()
	encoded[26] = 0xFF // HostOS byte well past hostOSMax

	_, err := Decode(encoded)
	require.Error(t, err)
	assert.True(t, skyerrors.IsKind(err, skyerrors.KindHeaderDecodeCorruptedHeader))
}

func TestHeaderDecode_VersionMismatch(t *testing.T) {
	h := NewHeader(1, 1, FileClassJournal, FileSpecifierGNSEventLog, 1, 0)
	encoded := h.Encode()
	encoded[8] ^= 0xFF // header version bytes

	_, err := Decode(encoded)
	require.Error(t, err)
	assert.True(t, skyerrors.IsKind(err, skyerrors.KindHeaderDecodeVersionMismatch))
}

func TestHeaderCompatibleWith(t *testing.T) {
	h := NewHeader(5, 9, FileClassJournal, FileSpecifierModelBatchJournal, 1, 0)
	assert.True(t, h.CompatibleWith(5, 9))
	assert.False(t, h.CompatibleWith(6, 9))
	assert.False(t, h.CompatibleWith(5, 10))
}
