// Package ddl implements the DDL execution core (spec §4.6, §4.7):
// CREATE/ALTER/DROP SPACE|MODEL as prepare-plan -> append GNS txn event ->
// mutate in-memory state, under per-space write locks.
package ddl

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	skyerrors "github.com/skyenginedb/skyengine/pkg/errors"
	"github.com/skyenginedb/skyengine/pkg/journal"
	"github.com/skyenginedb/skyengine/pkg/journal/eventlog"
	"github.com/skyenginedb/skyengine/pkg/model"
	"github.com/skyenginedb/skyengine/pkg/queryast"
	"github.com/skyenginedb/skyengine/pkg/sdss"
	"github.com/skyenginedb/skyengine/pkg/types"
)

// Engine executes DDL operations against a GlobalNS, persisting every
// mutation to the GNS event log before publishing it in memory (spec §3
// Lifecycle).
type Engine struct {
	GNS       *model.GlobalNS
	DataRoot  string
	gnsJournal *journal.Journal
	adapter   *eventlog.Adapter

	// spaceLocks guards per-space write locks (spec §5: the per-space DDL
	// path takes a write lock on idx_spaces; ALTER additionally locks the
	// specific space).
	mu         sync.Mutex
	spaceLocks map[string]*sync.Mutex

	ServerVersion uint64
	DriverVersion uint64
	NowEpochNanos func() uint64
}

// Open creates or reopens the GNS event log at <dataRoot>/gns.db-tlog and
// replays it into a fresh GlobalNS.
func Open(dataRoot string, serverVersion, driverVersion uint64, nowEpochNanos func() uint64) (*Engine, error) {
	e := &Engine{
		GNS:           model.NewGlobalNS(),
		DataRoot:      dataRoot,
		spaceLocks:    make(map[string]*sync.Mutex),
		ServerVersion: serverVersion,
		DriverVersion: driverVersion,
		NowEpochNanos: nowEpochNanos,
	}
	e.adapter = eventlog.NewAdapter()
	e.registerDecoders()

	if err := os.MkdirAll(dataRoot, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(dataRoot, "gns.db-tlog")
	j, err := journal.Open(path, journal.OpenOptions{
		ServerVersion:     serverVersion,
		DriverVersion:     driverVersion,
		FileSpecifier:     sdss.FileSpecifierGNSEventLog,
		FileSpecifierVer:  1,
		CreatedEpochNanos: nowEpochNanos(),
		Adapter:           e.adapter,
	})
	if err != nil {
		return nil, err
	}
	e.gnsJournal = j
	return e, nil
}

// Close closes the GNS journal.
func (e *Engine) Close() error {
	return e.gnsJournal.Close()
}

func (e *Engine) lockFor(space string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.spaceLocks[space]
	if !ok {
		l = &sync.Mutex{}
		e.spaceLocks[space] = l
	}
	return l
}

func fieldDeclsFrom(fields []queryast.FieldDeclaration) []eventlog.FieldDecl {
	out := make([]eventlog.FieldDecl, 0, len(fields))
	for _, f := range fields {
		out = append(out, eventlog.FieldDecl{Name: f.Name, Layers: f.Layers, Nullable: f.Nullable})
	}
	return out
}

func validateIdentifier(name string) error {
	if len(name) == 0 {
		return skyerrors.ErrEmptyIdentifier
	}
	if len(name) > 64 {
		return skyerrors.ErrIdentifierTooLong
	}
	for _, r := range name {
		if r > 127 {
			return fmt.Errorf("identifier %q must be ASCII", name)
		}
	}
	return nil
}
