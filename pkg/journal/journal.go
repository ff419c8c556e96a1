// Package journal implements the raw append-only event journal described
// in spec §4.2: a sequence of typed events guarded by driver events (Close,
// Reopen) that bracket sessions, with an open/replay/repair protocol built
// on top of the SDSS header and tracked I/O from pkg/sdss.
package journal

import (
	"errors"
	"io"
	"os"
	"sync"

	skyerrors "github.com/skyenginedb/skyengine/pkg/errors"
	"github.com/skyenginedb/skyengine/pkg/sdss"
)

// Driver event tags occupy the low values of the tag byte; adapter events
// use tag >= 2.
const (
	EventClose      byte = 0
	EventReopen     byte = 1
	FirstAdapterTag byte = 2
)

// Adapter decodes and applies adapter-specific events during replay. Each
// adapter (event log, batch journal) implements this against its own
// mutable state.
type Adapter interface {
	// DecodeApply reads one adapter event's payload (the portion after the
	// raw event header) from r and applies it. It must consume exactly the
	// bytes belonging to the event.
	DecodeApply(r *sdss.TrackedReader, tag byte) error
}

// CommitPreference distinguishes how an adapter event's payload is framed.
// Buffered is reserved and unused by current adapters (spec §4.2).
type CommitPreference int

const (
	CommitDirect CommitPreference = iota
	CommitBuffered
)

// Journal is a single-writer, append-only event log over one file.
type Journal struct {
	mu          sync.Mutex
	file        *os.File
	writer      *sdss.TrackedWriter
	header      sdss.Header
	lastEventID uint64
	started     bool // false until the first event (id 0) has been appended/replayed
	closed      bool
}

// OpenOptions configures Open.
type OpenOptions struct {
	ServerVersion     uint64
	DriverVersion     uint64
	FileSpecifier     sdss.FileSpecifier
	FileSpecifierVer  uint16
	CreatedEpochNanos uint64
	Adapter           Adapter
}

// Open opens path for append, creating it with a fresh SDSS header if it
// does not exist, or replaying its existing events against opts.Adapter
// otherwise. On a successful open for an existing file, a Reopen driver
// event is written immediately, per spec §4.2.
//
// Replay and repair share a single scan pass (scanEvents): every adapter
// event on disk reaches opts.Adapter.DecodeApply exactly once, whether or
// not the file has a torn tail. Open never re-scans from the start after a
// repair — doing so would re-apply already-applied adapter events against
// live state a second time.
func Open(path string, opts OpenOptions) (*Journal, error) {
	_, statErr := os.Stat(path)
	isNew := errors.Is(statErr, os.ErrNotExist)

	if isNew {
		f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
		if err != nil {
			return nil, err
		}
		hdr := sdss.NewHeader(opts.ServerVersion, opts.DriverVersion, sdss.FileClassJournal, opts.FileSpecifier, opts.FileSpecifierVer, opts.CreatedEpochNanos)
		encoded := hdr.Encode()
		if _, err := f.Write(encoded[:]); err != nil {
			f.Close()
			return nil, err
		}
		if err := f.Sync(); err != nil {
			f.Close()
			return nil, err
		}
		j := &Journal{file: f, header: hdr}
		j.writer = sdss.NewTrackedWriter(f, f)
		return j, nil
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}

	scan, err := scanEvents(f, opts)
	if err != nil {
		f.Close()
		return nil, err
	}

	lastID := scan.lastGoodID
	sawAnyEvent := scan.sawAnyEvent

	if !scan.wellFormed {
		nextID := uint64(0)
		if sawAnyEvent {
			nextID = lastID + 1
		}
		if err := truncateAndAppendClose(f, scan.goodOffset, nextID); err != nil {
			f.Close()
			return nil, err
		}
		lastID = nextID
		sawAnyEvent = true
	}

	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		f.Close()
		return nil, err
	}

	j := &Journal{file: f, header: scan.header, lastEventID: lastID, started: sawAnyEvent}
	j.writer = sdss.NewTrackedWriter(f, f)

	if err := j.appendDriverEvent(EventReopen); err != nil {
		f.Close()
		return nil, err
	}

	return j, nil
}

// scanResult is the outcome of a single pass over an existing journal file.
type scanResult struct {
	header      sdss.Header
	goodOffset  int64  // byte offset immediately after the last good event
	lastGoodID  uint64 // id of the last good event (meaningless if !sawAnyEvent)
	sawAnyEvent bool
	wellFormed  bool // true if the file needs no repair: ends cleanly with Close, or has no events at all
}

// scanEvents reads the header and every event exactly once, applying
// adapter events via opts.Adapter.DecodeApply. Unlike a strict replay, it
// never errors out on a torn tail — a truncated read, an event id sequence
// gap, or a missing trailing Close all just stop the scan at the last good
// boundary and report wellFormed = false, so the caller can repair using
// the state already applied rather than re-scanning from the top.
func scanEvents(f *os.File, opts OpenOptions) (scanResult, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return scanResult{}, err
	}
	r := sdss.NewTrackedReader(f)

	var hblock [sdss.HeaderSize]byte
	if _, err := r.TrackedRead(hblock[:]); err != nil {
		return scanResult{}, skyerrors.NewStorageError(skyerrors.KindHeaderDecodeCorruptedHeader, "short header read", err)
	}
	hdr, err := sdss.Decode(hblock)
	if err != nil {
		return scanResult{}, err
	}
	if !hdr.CompatibleWith(opts.ServerVersion, opts.DriverVersion) {
		return scanResult{}, skyerrors.NewStorageError(skyerrors.KindHeaderDecodeVersionMismatch, "server/driver version mismatch", nil)
	}

	res := scanResult{header: hdr, goodOffset: sdss.HeaderSize}
	sawCloseLast := false

	for {
		if !r.HasLeft(16) {
			break
		}
		eventID, rerr := r.ReadU64LE()
		if rerr != nil {
			break
		}
		meta, rerr := r.ReadU64LE()
		if rerr != nil {
			break
		}
		tag := byte(meta & 0xFF)

		if res.sawAnyEvent && eventID != res.lastGoodID+1 {
			break
		}
		if !res.sawAnyEvent && eventID != 0 {
			break
		}

		ok := true
		switch tag {
		case EventClose:
			sawCloseLast = true
		case EventReopen:
			sawCloseLast = false
		default:
			sawCloseLast = false
			if opts.Adapter == nil {
				ok = false
			} else if aerr := opts.Adapter.DecodeApply(r, tag); aerr != nil {
				ok = false
			}
		}
		if !ok {
			break
		}

		res.lastGoodID = eventID
		res.sawAnyEvent = true
		res.goodOffset = int64(r.Cursor())
	}

	res.wellFormed = !res.sawAnyEvent || sawCloseLast
	return res, nil
}

// truncateAndAppendClose cuts path back to offset and appends a synthetic
// Close event with the given id, fsyncing before returning. Used both by
// Open's inline repair and by the standalone Repair entry point.
func truncateAndAppendClose(f *os.File, offset int64, closeID uint64) error {
	if err := f.Truncate(offset); err != nil {
		return err
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return err
	}
	w := sdss.NewTrackedWriter(f, f)
	if err := w.WriteU64LE(closeID); err != nil {
		return err
	}
	if err := w.WriteU64LE(uint64(EventClose)); err != nil {
		return err
	}
	return w.FsyncAll()
}

func (j *Journal) appendDriverEvent(tag byte) error {
	return j.appendEventLocked(tag, func(*sdss.TrackedWriter) error { return nil })
}

// AppendEvent appends one adapter event: the raw header (next event id +
// meta carrying tag) followed by whatever writeBody emits. writeBody is
// responsible for its own payload framing and integrity (checksum/length
// prefix), per spec §4.2's CommitDirect contract.
func (j *Journal) AppendEvent(tag byte, writeBody func(w *sdss.TrackedWriter) error) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return skyerrors.ErrJournalClosed
	}
	return j.appendEventLocked(tag, writeBody)
}

func (j *Journal) appendEventLocked(tag byte, writeBody func(w *sdss.TrackedWriter) error) error {
	var nextID uint64
	if j.started {
		nextID = j.lastEventID + 1
	} else {
		nextID = 0
	}
	meta := uint64(tag)
	if err := j.writer.WriteU64LE(nextID); err != nil {
		return err
	}
	if err := j.writer.WriteU64LE(meta); err != nil {
		return err
	}
	if err := writeBody(j.writer); err != nil {
		return err
	}
	if err := j.writer.FsyncAll(); err != nil {
		return err
	}
	j.lastEventID = nextID
	j.started = true
	return nil
}

// LastEventID returns the id of the most recently appended or replayed
// event.
func (j *Journal) LastEventID() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.lastEventID
}

// Close writes a terminal Close driver event and closes the underlying
// file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	if err := j.appendEventLocked(EventClose, func(*sdss.TrackedWriter) error { return nil }); err != nil {
		return err
	}
	j.closed = true
	return j.file.Close()
}
