package chunk

import (
	"sync/atomic"
	"time"

	"github.com/sells-group/zonemap/internal/projection"
	"github.com/sells-group/zonemap/internal/zones"
)

// Snapshot is the drawable result of one refresh cycle.
type Snapshot struct {
	ID          string            `json:"id"`
	Generation  uint64            `json:"generation"`
	Year        int               `json:"year"`
	Bounds      projection.Bounds `json:"bounds"`
	Chunks      []Chunk           `json:"chunks"`
	Failed      int               `json:"failed"`
	InitiatedAt time.Time         `json:"initiated_at"`
	CompletedAt time.Time         `json:"completed_at"`
}

// Zones returns the zones of every chunk with duplicates removed. A zone that
// straddles cell edges is returned by each cell it touches; the first copy
// wins.
func (s *Snapshot) Zones() []zones.Zone {
	if s == nil {
		return nil
	}
	seen := make(map[string]struct{})
	var out []zones.Zone
	for _, c := range s.Chunks {
		for _, z := range c.Zones {
			key := z.Key()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, z)
		}
	}
	return out
}

// ZoneCount returns the number of distinct zones.
func (s *Snapshot) ZoneCount() int {
	return len(s.Zones())
}

// Slot holds the live snapshot. One writer (the orchestrator) replaces it
// wholesale; any number of readers load it without locking.
type Slot struct {
	p atomic.Pointer[Snapshot]
}

// NewSlot returns an empty slot.
func NewSlot() *Slot {
	return &Slot{}
}

// Load returns the live snapshot, or nil before the first commit.
func (s *Slot) Load() *Snapshot {
	return s.p.Load()
}

// Store replaces the live snapshot.
func (s *Slot) Store(snap *Snapshot) {
	s.p.Store(snap)
}
