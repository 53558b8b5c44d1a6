// Package commpattern keeps the list of entities a part holds locally, who
// owns each of them, and the receive layout needed to refresh the copies that
// are owned elsewhere.
//
// Structural changes are buffered by Add, Move and Remove and only take effect
// on Rebuild. A Pattern is frozen while an exchange reads its metadata.
package commpattern

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"go.uber.org/multierr"

	"github.com/notargets/halomesh/utils"
)

var (
	ErrSetup        = errors.New("setup error")
	ErrFrozen       = errors.New("comm pattern is frozen")
	ErrSizeMismatch = errors.New("size mismatch")
)

type State uint8

const (
	Live State = iota
	Frozen
)

func (s State) String() string {
	switch s {
	case Live:
		return "Live"
	case Frozen:
		return "Frozen"
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// Entry is one locally held entity. Its position in the Pattern is the local
// index used by every client array.
type Entry struct {
	GID       uint64
	Rank      int
	Updatable bool // Owned by the pattern's rank
}

// Broadcast is a removal that the transport should forward to every part.
type Broadcast struct {
	GID  uint64
	Rank int
}

type bufferItem struct {
	gid    uint64
	rank   int
	option bool // keepAsGhost for moves, onAllRanks for removes
}

// Array is client data laid out by local index. Its length is checked against
// the pattern on Rebuild.
type Array interface {
	Name() string
	Len() int
}

// Remapper is implemented by arrays that the pattern compacts itself when
// entries are dropped. keep lists, in order, the old local indices retained.
type Remapper interface {
	Remap(keep []int)
}

type Pattern struct {
	name       string
	rank       int
	state      State
	generation uint64 // successful rebuilds

	entries []Entry
	lookup  map[uint64]int

	addBuf, movBuf, remBuf *utils.DynBuffer[bufferItem]

	arrays []Array

	recvCount  map[int]int
	recvDisp   map[int]int
	recvRanks  []int
	recvMap    []int
	broadcasts []Broadcast
}

// New creates an empty, live pattern for the part with the given rank.
func New(name string, rank int) *Pattern {
	return &Pattern{
		name:      name,
		rank:      rank,
		lookup:    make(map[uint64]int),
		addBuf:    utils.NewDynBuffer[bufferItem](0),
		movBuf:    utils.NewDynBuffer[bufferItem](0),
		remBuf:    utils.NewDynBuffer[bufferItem](0),
		recvCount: make(map[int]int),
		recvDisp:  make(map[int]int),
	}
}

func (p *Pattern) Name() string   { return p.name }
func (p *Pattern) Rank() int      { return p.rank }
func (p *Pattern) State() State   { return p.state }
func (p *Pattern) IsFrozen() bool { return p.state == Frozen }
func (p *Pattern) Freeze()        { p.state = Frozen }
func (p *Pattern) Unfreeze()      { p.state = Live }
func (p *Pattern) Len() int       { return len(p.entries) }

func (p *Pattern) Entry(i int) Entry { return p.entries[i] }

// Generation counts successful rebuilds. Anything derived from the receive
// layout is stale once it changes.
func (p *Pattern) Generation() uint64 { return p.generation }

// Entries returns a copy of the resolved entry sequence.
func (p *Pattern) Entries() []Entry {
	out := make([]Entry, len(p.entries))
	copy(out, p.entries)
	return out
}

func (p *Pattern) IsUpdatable(i int) bool { return p.entries[i].Updatable }

func (p *Pattern) LocalIndex(gid uint64) (int, bool) {
	i, ok := p.lookup[gid]
	return i, ok
}

func (p *Pattern) NumUpdatable() (n int) {
	for _, e := range p.entries {
		if e.Updatable {
			n++
		}
	}
	return
}

// Pending returns the number of buffered mutations not yet rebuilt.
func (p *Pattern) Pending() (adds, moves, removes int) {
	return p.addBuf.Len(), p.movBuf.Len(), p.remBuf.Len()
}

func (p *Pattern) frozenErr(op string) error {
	return fmt.Errorf("%w: wanted to %s comm pattern %q", ErrFrozen, op, p.name)
}

// Add buffers a new entry owned by rank.
func (p *Pattern) Add(gid uint64, rank int) error {
	if p.IsFrozen() {
		return p.frozenErr("add entries to")
	}
	p.addBuf.Add(bufferItem{gid, rank, false})
	return nil
}

// Move buffers an ownership change. With keepAsGhost false an entry whose new
// owner is another rank is dropped locally.
func (p *Pattern) Move(gid uint64, rank int, keepAsGhost bool) error {
	if p.IsFrozen() {
		return p.frozenErr("move entries of")
	}
	p.movBuf.Add(bufferItem{gid, rank, keepAsGhost})
	return nil
}

// Remove buffers a local removal. With onAllRanks the removal is also queued
// in Broadcasts for the transport to forward.
func (p *Pattern) Remove(gid uint64, rank int, onAllRanks bool) error {
	if p.IsFrozen() {
		return p.frozenErr("remove entries from")
	}
	p.remBuf.Add(bufferItem{gid, rank, onAllRanks})
	return nil
}

// Register attaches a client array whose length is validated on Rebuild.
func (p *Pattern) Register(a Array) error {
	for _, b := range p.arrays {
		if b.Name() == a.Name() {
			return fmt.Errorf("%w: array %q already registered with comm pattern %q",
				ErrSetup, a.Name(), p.name)
		}
	}
	p.arrays = append(p.arrays, a)
	return nil
}

func (p *Pattern) Unregister(name string) bool {
	for i, b := range p.arrays {
		if b.Name() == name {
			p.arrays = append(p.arrays[:i], p.arrays[i+1:]...)
			return true
		}
	}
	return false
}

// Setup adds one entry per (gid, rank) pair and rebuilds.
func (p *Pattern) Setup(gids []uint64, ranks []int) error {
	if len(gids) != len(ranks) {
		return fmt.Errorf("%w: %d global ids but %d ranks", ErrSizeMismatch, len(gids), len(ranks))
	}
	for i, gid := range gids {
		if err := p.Add(gid, ranks[i]); err != nil {
			return err
		}
	}
	return p.Rebuild()
}

// Rebuild applies the buffered adds, then moves, then removes, and recomputes
// the receive layout. On error nothing is changed and the buffers are kept.
//
// Registered arrays must already hold one value per entry including the
// pending adds, in add order.
func (p *Pattern) Rebuild() error {
	if p.IsFrozen() {
		return p.frozenErr("rebuild")
	}
	if err := p.validate(); err != nil {
		return err
	}
	var (
		adds    = p.addBuf.Cells()
		entries = make([]Entry, len(p.entries), len(p.entries)+len(adds))
		lookup  = make(map[uint64]int, len(p.entries)+len(adds))
	)
	copy(entries, p.entries)
	for _, it := range adds {
		entries = append(entries, Entry{GID: it.gid, Rank: it.rank})
	}
	keep := make([]bool, len(entries))
	for i, e := range entries {
		lookup[e.GID] = i
		keep[i] = true
	}
	for _, it := range p.movBuf.Cells() {
		i, ok := lookup[it.gid]
		if !ok {
			continue
		}
		entries[i].Rank = it.rank
		keep[i] = it.rank == p.rank || it.option
	}
	var broadcasts []Broadcast
	for _, it := range p.remBuf.Cells() {
		if it.option {
			broadcasts = append(broadcasts, Broadcast{it.gid, it.rank})
		}
		if i, ok := lookup[it.gid]; ok {
			keep[i] = false
		}
	}

	kept := make([]int, 0, len(entries))
	for i, k := range keep {
		if k {
			kept = append(kept, i)
		}
	}
	if len(kept) != len(entries) {
		var err error
		for _, a := range p.arrays {
			if _, ok := a.(Remapper); !ok {
				err = multierr.Append(err, fmt.Errorf("%w: array %q cannot follow the %d entries dropped from comm pattern %q",
					ErrSetup, a.Name(), len(entries)-len(kept), p.name))
			}
		}
		if err != nil {
			return err
		}
		compact := make([]Entry, len(kept))
		for n, i := range kept {
			compact[n] = entries[i]
		}
		entries = compact
		for _, a := range p.arrays {
			if r, ok := a.(Remapper); ok {
				r.Remap(kept)
			}
		}
	}

	p.entries = entries
	p.lookup = make(map[uint64]int, len(entries))
	for i := range p.entries {
		p.entries[i].Updatable = p.entries[i].Rank == p.rank
		p.lookup[p.entries[i].GID] = i
	}
	p.broadcasts = broadcasts
	p.buildRecv()
	p.generation++

	p.addBuf.Reset()
	p.movBuf.Reset()
	p.remBuf.Reset()
	return nil
}

func (p *Pattern) validate() (err error) {
	var (
		adds = p.addBuf.Cells()
		seen = make(map[uint64]struct{}, len(adds))
	)
	for _, it := range adds {
		_, dupEntry := p.lookup[it.gid]
		_, dupAdd := seen[it.gid]
		if dupEntry || dupAdd {
			err = multierr.Append(err, fmt.Errorf("%w: global id %d added twice to comm pattern %q",
				ErrSetup, it.gid, p.name))
		}
		seen[it.gid] = struct{}{}
	}
	expected := len(p.entries) + len(adds)
	for _, a := range p.arrays {
		if a.Len() != expected {
			err = multierr.Append(err, fmt.Errorf("%w: array %q has %d values, comm pattern %q expects %d",
				ErrSizeMismatch, a.Name(), a.Len(), p.name, expected))
		}
	}
	return
}

// buildRecv counts non-local entries per owner rank and lays out recvMap so
// each rank's local indices are contiguous, ranks ascending, entries in local
// order.
func (p *Pattern) buildRecv() {
	p.recvCount = make(map[int]int)
	for _, e := range p.entries {
		if !e.Updatable {
			p.recvCount[e.Rank]++
		}
	}
	p.recvRanks = p.recvRanks[:0]
	for r := range p.recvCount {
		p.recvRanks = append(p.recvRanks, r)
	}
	sort.Ints(p.recvRanks)

	var (
		total  int
		cursor = make(map[int]int, len(p.recvRanks))
	)
	p.recvDisp = make(map[int]int, len(p.recvRanks))
	for _, r := range p.recvRanks {
		p.recvDisp[r] = total
		cursor[r] = total
		total += p.recvCount[r]
	}
	p.recvMap = make([]int, total)
	for i := range p.recvMap {
		p.recvMap[i] = -1
	}
	for i, e := range p.entries {
		if !e.Updatable {
			p.recvMap[cursor[e.Rank]] = i
			cursor[e.Rank]++
		}
	}
	for slot, i := range p.recvMap {
		if i < 0 {
			panic(fmt.Sprintf("comm pattern %q: receive slot %d left unresolved", p.name, slot))
		}
	}
}

// RecvCount is the number of entries owned by rank that this part receives.
func (p *Pattern) RecvCount(rank int) int { return p.recvCount[rank] }

// RecvRanks lists, ascending, the ranks this part receives from.
func (p *Pattern) RecvRanks() []int {
	out := make([]int, len(p.recvRanks))
	copy(out, p.recvRanks)
	return out
}

func (p *Pattern) RecvMap() []int {
	out := make([]int, len(p.recvMap))
	copy(out, p.recvMap)
	return out
}

// RecvOffset is the position of rank's first slot in RecvMap.
func (p *Pattern) RecvOffset(rank int) int { return p.recvDisp[rank] }

// RecvBlock returns the local indices written by messages from rank.
func (p *Pattern) RecvBlock(rank int) []int {
	n, ok := p.recvCount[rank]
	if !ok {
		return nil
	}
	off := p.recvDisp[rank]
	return p.recvMap[off : off+n : off+n]
}

// Broadcasts returns the removals flagged onAllRanks by the last Rebuild.
func (p *Pattern) Broadcasts() []Broadcast {
	out := make([]Broadcast, len(p.broadcasts))
	copy(out, p.broadcasts)
	return out
}

func (p *Pattern) Print(w io.Writer) {
	fmt.Fprintf(w, "comm pattern %q rank %d [%s]: %d entries, %d updatable\n",
		p.name, p.rank, p.state, len(p.entries), p.NumUpdatable())
	for _, r := range p.recvRanks {
		fmt.Fprintf(w, "  recv from %d: %d at %d -> %v\n", r, p.recvCount[r], p.recvDisp[r], p.RecvBlock(r))
	}
}
