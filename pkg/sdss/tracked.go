package sdss

import (
	"bufio"
	"encoding/binary"
	"hash/crc64"
	"io"
)

var crcTable = crc64.MakeTable(crc64.ISO)

// TrackedReader wraps an io.Reader, maintaining a running CRC-64 over every
// byte read since the last Reset and a byte-accurate logical cursor.
type TrackedReader struct {
	r      *bufio.Reader
	crc    uint64
	cursor uint64
}

// NewTrackedReader wraps r.
func NewTrackedReader(r io.Reader) *TrackedReader {
	return &TrackedReader{r: bufio.NewReader(r)}
}

// HasLeft reports whether at least n more bytes are available without
// blocking past EOF. It never returns an error for a clean EOF; callers
// check the returned bool.
func (t *TrackedReader) HasLeft(n int) bool {
	_, err := t.r.Peek(n)
	return err == nil
}

// TrackedRead reads len(p) bytes, folding them into the running checksum
// and cursor.
func (t *TrackedReader) TrackedRead(p []byte) (int, error) {
	n, err := io.ReadFull(t.r, p)
	if n > 0 {
		t.crc = crc64.Update(t.crc, crcTable, p[:n])
		t.cursor += uint64(n)
	}
	return n, err
}

// ReadBlock reads exactly n bytes into a freshly allocated slice.
func (t *TrackedReader) ReadBlock(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := t.TrackedRead(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// ReadU64LE reads a single little-endian u64.
func (t *TrackedReader) ReadU64LE() (uint64, error) {
	var buf [8]byte
	if _, err := t.TrackedRead(buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

// ReadU8 reads a single byte.
func (t *TrackedReader) ReadU8() (byte, error) {
	var buf [1]byte
	if _, err := t.TrackedRead(buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// Checksum returns the CRC-64 accumulated since the last ResetPartial.
func (t *TrackedReader) Checksum() uint64 { return t.crc }

// Cursor returns the logical byte offset read so far.
func (t *TrackedReader) Cursor() uint64 { return t.cursor }

// ResetPartial returns the checksum accumulated since the last reset and
// zeroes it, establishing a new independent checksum context. This is used
// by adapters that need a checksum scoped to a single event rather than the
// whole stream.
func (t *TrackedReader) ResetPartial() uint64 {
	v := t.crc
	t.crc = 0
	return v
}

// TrackedWriter wraps an io.Writer with the same checksum/cursor discipline
// as TrackedReader, plus an explicit fsync hook for commit points chosen by
// higher layers.
type TrackedWriter struct {
	w      *bufio.Writer
	syncer interface{ Sync() error }
	crc    uint64
	cursor uint64
}

// NewTrackedWriter wraps w. syncer, if non-nil, is invoked by FsyncAll.
func NewTrackedWriter(w io.Writer, syncer interface{ Sync() error }) *TrackedWriter {
	return &TrackedWriter{w: bufio.NewWriter(w), syncer: syncer}
}

// TrackedWrite writes p, folding it into the running checksum and cursor.
func (t *TrackedWriter) TrackedWrite(p []byte) (int, error) {
	n, err := t.w.Write(p)
	if n > 0 {
		t.crc = crc64.Update(t.crc, crcTable, p[:n])
		t.cursor += uint64(n)
	}
	return n, err
}

// WriteU64LE writes a single little-endian u64.
func (t *TrackedWriter) WriteU64LE(v uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, err := t.TrackedWrite(buf[:])
	return err
}

// WriteU8 writes a single byte.
func (t *TrackedWriter) WriteU8(v byte) error {
	_, err := t.TrackedWrite([]byte{v})
	return err
}

// Checksum returns the CRC-64 accumulated since the last ResetPartial.
func (t *TrackedWriter) Checksum() uint64 { return t.crc }

// Cursor returns the logical byte offset written so far.
func (t *TrackedWriter) Cursor() uint64 { return t.cursor }

// ResetPartial returns the checksum accumulated since the last reset and
// zeroes it.
func (t *TrackedWriter) ResetPartial() uint64 {
	v := t.crc
	t.crc = 0
	return v
}

// Flush pushes buffered bytes to the underlying writer without fsyncing.
func (t *TrackedWriter) Flush() error {
	return t.w.Flush()
}

// FsyncAll flushes buffered bytes and, if a syncer was supplied, fsyncs the
// underlying file. Commit points in the raw journal and its adapters always
// call this before considering an event durable.
func (t *TrackedWriter) FsyncAll() error {
	if err := t.w.Flush(); err != nil {
		return err
	}
	if t.syncer != nil {
		return t.syncer.Sync()
	}
	return nil
}
