package journal

import (
	"os"
)

// RepairReport summarizes the outcome of a Repair pass.
type RepairReport struct {
	LastGoodEventID        uint64
	TrailingBytesCut       int64
	AppendedSyntheticClose bool
}

// Repair scans path for a torn tail — a partial event past the last known
// good event boundary — and truncates it, appending a synthetic Close so
// the file is well-formed again. It is callable independently of Open (an
// operator tool against a journal that a crashed process never got to
// reopen) and shares its single-pass scan with Open's own inline repair, so
// neither path ever applies an adapter event against live state more than
// once.
func Repair(path string, opts OpenOptions) (RepairReport, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return RepairReport{}, err
	}
	defer f.Close()

	scan, err := scanEvents(f, opts)
	if err != nil {
		return RepairReport{}, err
	}

	info, err := f.Stat()
	if err != nil {
		return RepairReport{}, err
	}
	trailing := info.Size() - scan.goodOffset

	if scan.wellFormed && trailing == 0 {
		return RepairReport{LastGoodEventID: scan.lastGoodID}, nil
	}

	nextID := uint64(0)
	if scan.sawAnyEvent {
		nextID = scan.lastGoodID + 1
	}
	if err := truncateAndAppendClose(f, scan.goodOffset, nextID); err != nil {
		return RepairReport{}, err
	}

	return RepairReport{
		LastGoodEventID:        scan.lastGoodID,
		TrailingBytesCut:       trailing,
		AppendedSyntheticClose: true,
	}, nil
}
