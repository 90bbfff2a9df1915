package kernel

import (
	"sort"
	"sync"

	"microsim-control-core/control"
)

// SnapshotTable holds the most recently completed per-tick vehicle snapshot.
// Publish replaces the whole tick at once, so readers never observe a state
// mixing two simulation steps. Reads and publishes may happen concurrently.
type SnapshotTable struct {
	mu     sync.RWMutex
	tick   uint64
	simT   float64
	states map[string]control.VehicleState
}

// NewSnapshotTable returns an empty table.
func NewSnapshotTable() *SnapshotTable {
	return &SnapshotTable{states: map[string]control.VehicleState{}}
}

// Publish installs a complete tick. The slice is copied; callers may reuse it.
func (t *SnapshotTable) Publish(tick uint64, simT float64, states []control.VehicleState) {
	next := make(map[string]control.VehicleState, len(states))
	for _, st := range states {
		next[st.ID] = st
	}
	t.mu.Lock()
	t.tick = tick
	t.simT = simT
	t.states = next
	t.mu.Unlock()
}

// Tick returns the tick counter of the published snapshot.
func (t *SnapshotTable) Tick() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.tick
}

// SimTime returns the simulation time (seconds) of the published snapshot.
func (t *SnapshotTable) SimTime() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.simT
}

// Get returns the snapshot for one vehicle.
func (t *SnapshotTable) Get(id string) (control.VehicleState, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	st, ok := t.states[id]
	return st, ok
}

// All returns the published tick as a copy, sorted by vehicle ID so callers
// iterate deterministically. The second return is the tick counter.
func (t *SnapshotTable) All() ([]control.VehicleState, uint64) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]control.VehicleState, 0, len(t.states))
	for _, st := range t.states {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, t.tick
}
