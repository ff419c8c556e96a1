// Package sdss implements the SDSS (Skytable Disk Storage Standard) file
// header that every on-disk file begins with, plus the tracked reader and
// writer wrappers that higher layers use to compute a running checksum and
// a byte-accurate logical cursor.
package sdss

import (
	"encoding/binary"

	skyerrors "github.com/skyenginedb/skyengine/pkg/errors"
)

// HeaderSize is the fixed on-disk size of an SDSS header.
const HeaderSize = 64

// Magic is the fixed 8-byte value every SDSS file must begin with.
const Magic uint64 = 0x4F48534159414E21

// HeaderVersion is the version of the header layout itself.
const HeaderVersion uint16 = 1

// HostOS enumerates the operating system the file was created under.
type HostOS uint8

const (
	HostOSLinux HostOS = iota
	HostOSDarwin
	HostOSWindows
	hostOSMax
)

// HostArch enumerates the CPU architecture the file was created under.
type HostArch uint8

const (
	HostArchAMD64 HostArch = iota
	HostArchARM64
	HostArch386
	hostArchMax
)

// PointerWidth enumerates the pointer width of the creating process.
type PointerWidth uint8

const (
	PointerWidth32 PointerWidth = iota
	PointerWidth64
	pointerWidthMax
)

// Endian enumerates the byte order of the creating process. All on-disk
// integers are little-endian regardless of this field; it is a diagnostic
// record of the host, per spec §4.1.
type Endian uint8

const (
	EndianLittle Endian = iota
	EndianBig
	endianMax
)

// FileClass enumerates the broad category of file.
type FileClass uint8

const (
	FileClassJournal FileClass = iota
	fileClassMax
)

// FileSpecifier enumerates the specific adapter/format a journal file holds.
type FileSpecifier uint8

const (
	FileSpecifierGNSEventLog FileSpecifier = iota
	FileSpecifierModelBatchJournal
	fileSpecifierMax
)

// Header is the 64-byte structure at the start of every persistent file.
type Header struct {
	ServerVersion       uint64
	DriverVersion       uint64
	HostOS              HostOS
	HostArch            HostArch
	PointerWidth        PointerWidth
	Endian              Endian
	FileClass           FileClass
	FileSpecifier       FileSpecifier
	FileSpecifierVer    uint16
	CreatedEpochNanos   uint64 // low 64 bits of the u128 creation stamp
	CreatedEpochNanosHi uint64 // high 64 bits; zero for all timestamps representable in int64 ns
}

// Encode writes the header to a fixed 64-byte block.
func (h Header) Encode() [HeaderSize]byte {
	var buf [HeaderSize]byte
	binary.LittleEndian.PutUint64(buf[0:8], Magic)
	binary.LittleEndian.PutUint16(buf[8:10], HeaderVersion)
	binary.LittleEndian.PutUint64(buf[10:18], h.ServerVersion)
	binary.LittleEndian.PutUint64(buf[18:26], h.DriverVersion)
	buf[26] = byte(h.HostOS)
	buf[27] = byte(h.HostArch)
	buf[28] = byte(h.PointerWidth)
	buf[29] = byte(h.Endian)
	buf[30] = byte(h.FileClass)
	buf[31] = byte(h.FileSpecifier)
	binary.LittleEndian.PutUint16(buf[32:34], h.FileSpecifierVer)
	binary.LittleEndian.PutUint64(buf[34:42], h.CreatedEpochNanos)
	binary.LittleEndian.PutUint64(buf[42:50], h.CreatedEpochNanosHi)
	// buf[50:64] remain zero padding.
	return buf
}

// Decode parses and validates a 64-byte header block. It returns
// HeaderDecodeCorruptedHeader if the magic or any enum byte is out of
// range, or HeaderDecodeVersionMismatch if the embedded header version
// does not match HeaderVersion exactly.
func Decode(block [HeaderSize]byte) (Header, error) {
	var h Header

	magic := binary.LittleEndian.Uint64(block[0:8])
	if magic != Magic {
		return h, skyerrors.NewStorageError(skyerrors.KindHeaderDecodeCorruptedHeader, "magic mismatch", nil)
	}

	hv := binary.LittleEndian.Uint16(block[8:10])
	if hv != HeaderVersion {
		return h, skyerrors.NewStorageError(skyerrors.KindHeaderDecodeVersionMismatch, "header version mismatch", nil)
	}

	h.ServerVersion = binary.LittleEndian.Uint64(block[10:18])
	h.DriverVersion = binary.LittleEndian.Uint64(block[18:26])

	h.HostOS = HostOS(block[26])
	if h.HostOS >= hostOSMax {
		return Header{}, skyerrors.NewStorageError(skyerrors.KindHeaderDecodeCorruptedHeader, "host os out of range", nil)
	}
	h.HostArch = HostArch(block[27])
	if h.HostArch >= hostArchMax {
		return Header{}, skyerrors.NewStorageError(skyerrors.KindHeaderDecodeCorruptedHeader, "host arch out of range", nil)
	}
	h.PointerWidth = PointerWidth(block[28])
	if h.PointerWidth >= pointerWidthMax {
		return Header{}, skyerrors.NewStorageError(skyerrors.KindHeaderDecodeCorruptedHeader, "pointer width out of range", nil)
	}
	h.Endian = Endian(block[29])
	if h.Endian >= endianMax {
		return Header{}, skyerrors.NewStorageError(skyerrors.KindHeaderDecodeCorruptedHeader, "endian out of range", nil)
	}
	h.FileClass = FileClass(block[30])
	if h.FileClass >= fileClassMax {
		return Header{}, skyerrors.NewStorageError(skyerrors.KindHeaderDecodeCorruptedHeader, "file class out of range", nil)
	}
	h.FileSpecifier = FileSpecifier(block[31])
	if h.FileSpecifier >= fileSpecifierMax {
		return Header{}, skyerrors.NewStorageError(skyerrors.KindHeaderDecodeCorruptedHeader, "file specifier out of range", nil)
	}
	h.FileSpecifierVer = binary.LittleEndian.Uint16(block[32:34])
	h.CreatedEpochNanos = binary.LittleEndian.Uint64(block[34:42])
	h.CreatedEpochNanosHi = binary.LittleEndian.Uint64(block[42:50])

	return h, nil
}

// CompatibleWith reports whether h is compatible for opening against the
// currently running server/driver versions. Default compatibility is exact
// match, per spec §4.1; callers that need a looser rule build it on top.
func (h Header) CompatibleWith(serverVersion, driverVersion uint64) bool {
	return h.ServerVersion == serverVersion && h.DriverVersion == driverVersion
}

// NewHeader builds a header stamped with the current host information and
// the given file class/specifier, ready for Encode.
func NewHeader(serverVersion, driverVersion uint64, class FileClass, specifier FileSpecifier, specifierVersion uint16, createdEpochNanos uint64) Header {
	return Header{
		ServerVersion:     serverVersion,
		DriverVersion:     driverVersion,
		HostOS:            currentHostOS,
		HostArch:          currentHostArch,
		PointerWidth:      currentPointerWidth,
		Endian:            EndianLittle,
		FileClass:         class,
		FileSpecifier:     specifier,
		FileSpecifierVer:  specifierVersion,
		CreatedEpochNanos: createdEpochNanos,
	}
}
