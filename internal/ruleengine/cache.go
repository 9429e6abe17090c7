package ruleengine

import (
	"maps"
	"slices"
	"sync/atomic"
	"time"
)

// Generation is one immutable snapshot of compiled programs keyed by rule id.
// It is never modified after publication.
type Generation struct {
	seq         uint64
	installedAt time.Time
	programs    map[int64]Program
}

// Lookup returns the program compiled for id in this generation.
func (g *Generation) Lookup(id int64) (Program, bool) {
	p, ok := g.programs[id]
	return p, ok
}

// Size returns the number of programs in this generation.
func (g *Generation) Size() int {
	return len(g.programs)
}

// Seq is the publication counter; the empty initial generation is 0.
func (g *Generation) Seq() uint64 {
	return g.seq
}

// InstalledAt is when the generation was published.
func (g *Generation) InstalledAt() time.Time {
	return g.installedAt
}

// IDs returns the rule ids in ascending order.
func (g *Generation) IDs() []int64 {
	return slices.Sorted(maps.Keys(g.programs))
}

// ProgramCache holds the current Generation behind an atomic pointer.
// Readers take a snapshot without locking. Replace builds a new generation
// and swaps the pointer, so a reader sees either the old or the new set in full.
//
// Replace is not a substitute for serializing writers: two concurrent
// callers would both succeed and the last store wins.
type ProgramCache struct {
	current atomic.Pointer[Generation]
	seq     atomic.Uint64
}

// NewProgramCache returns a cache holding an empty generation.
func NewProgramCache() *ProgramCache {
	c := &ProgramCache{}
	c.current.Store(&Generation{programs: map[int64]Program{}})
	return c
}

// Replace publishes programs as the only visible generation. The map is copied,
// so later changes by the caller are not observed. A nil or empty map clears the cache.
func (c *ProgramCache) Replace(programs map[int64]Program) *Generation {
	next := &Generation{
		seq:         c.seq.Add(1),
		installedAt: time.Now(),
		programs:    make(map[int64]Program, len(programs)),
	}
	maps.Copy(next.programs, programs)

	c.current.Store(next)
	return next
}

// Snapshot returns the current generation. Callers evaluating several rules
// should take one snapshot and use it for the whole operation.
func (c *ProgramCache) Snapshot() *Generation {
	return c.current.Load()
}

// Lookup is a point lookup against the current generation.
func (c *ProgramCache) Lookup(id int64) (Program, bool) {
	return c.Snapshot().Lookup(id)
}

// Size returns the number of programs in the current generation.
func (c *ProgramCache) Size() int {
	return c.Snapshot().Size()
}
