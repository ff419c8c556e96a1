package model

import (
	"runtime"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/skyenginedb/skyengine/pkg/skymap"
	"github.com/skyenginedb/skyengine/pkg/types"
)

// Space is a named container of models with its own property dictionary
// (spec §3). Props holds whatever keys CREATE/ALTER SPACE supplied;
// pkg/engine/ddl does not restrict them to the single `env` key.
type Space struct {
	UUID   types.UUID
	Name   string
	mu     sync.RWMutex
	models map[string]struct{}
	Props  map[string]types.Datacell
}

// NewSpace builds an empty space.
func NewSpace(id types.UUID, name string, props map[string]types.Datacell) *Space {
	if props == nil {
		props = map[string]types.Datacell{}
	}
	return &Space{UUID: id, Name: name, models: make(map[string]struct{}), Props: props}
}

// AddModel registers a model name as belonging to this space.
func (s *Space) AddModel(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.models[name] = struct{}{}
}

// RemoveModel unregisters a model name.
func (s *Space) RemoveModel(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.models, name)
}

// ModelCount returns the number of models currently registered.
func (s *Space) ModelCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.models)
}

// ModelNames returns a snapshot of registered model names.
func (s *Space) ModelNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.models))
	for n := range s.models {
		out = append(out, n)
	}
	return out
}

// ApplyEnvPatch merges patch into the space's Props: a null value for a key
// clears that key, anything else sets it (spec §4.6 ALTER SPACE rule).
func (s *Space) ApplyEnvPatch(patch map[string]types.Datacell) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range patch {
		if v.IsNull() {
			delete(s.Props, k)
			continue
		}
		s.Props[k] = v
	}
}

// ModelKey addresses a model by (space, name), matching spec §3's
// Map<(space,name), Model>.
type ModelKey struct {
	Space string
	Name  string
}

// GlobalNS owns the process-wide catalog of spaces and models (spec §3).
// Its GNS driver (an event log journal) lives in pkg/engine/ddl, which
// owns the append-before-publish ordering.
type GlobalNS struct {
	IdxSpaces *skymap.Map[string, *Space]
	IdxModels *skymap.Map[ModelKey, *Model]
}

// NewGlobalNS builds an empty global namespace sized for the host's CPU
// count.
func NewGlobalNS() *GlobalNS {
	return &GlobalNS{
		IdxSpaces: skymap.NewStringMap[*Space](runtime.NumCPU()),
		IdxModels: skymap.New[ModelKey, *Model](runtime.NumCPU(), modelKeyHash),
	}
}

func modelKeyHash(k ModelKey) uint64 {
	h := xxhash.New()
	h.WriteString(k.Space)
	h.WriteString("\x00")
	h.WriteString(k.Name)
	return h.Sum64()
}
