// Package partition assigns contiguous blocks of global object indices to
// parts. The split is a pure function of (total, nparts), so every part can
// evaluate ownership of any index without communicating.
package partition

import (
	"errors"
	"fmt"

	"github.com/notargets/halomesh/utils"
)

// ErrOutOfRange is returned when a global index, part id or object class is
// outside the valid bounds of a hash.
var ErrOutOfRange = errors.New("out of range")

// ObjectClass identifies one of the object populations tracked by a MergedHash.
type ObjectClass int

const (
	Nodes ObjectClass = iota
	Elements
)

func (c ObjectClass) String() string {
	switch c {
	case Nodes:
		return "Nodes"
	case Elements:
		return "Elements"
	}
	return fmt.Sprintf("ObjectClass(%d)", int(c))
}

// Hash splits [0,Total) into NumParts contiguous ranges of floor(Total/NumParts)
// objects, the first Total%NumParts parts receiving one extra object.
type Hash struct {
	pm *utils.PartitionMap
}

func NewHash(total, nparts int) (*Hash, error) {
	if nparts <= 0 {
		return nil, fmt.Errorf("%w: number of parts must be positive, got %d", ErrOutOfRange, nparts)
	}
	if total < 0 {
		return nil, fmt.Errorf("%w: object count must not be negative, got %d", ErrOutOfRange, total)
	}
	return &Hash{pm: utils.NewPartitionMap(nparts, total)}, nil
}

func (h *Hash) Total() int    { return h.pm.MaxIndex }
func (h *Hash) NumParts() int { return h.pm.ParallelDegree }

// Owner returns the part owning global index gid.
func (h *Hash) Owner(gid int) (int, error) {
	bn, _, _ := h.pm.GetBucket(gid)
	if bn < 0 {
		return -1, fmt.Errorf("%w: global index %d not in [0,%d)", ErrOutOfRange, gid, h.Total())
	}
	return bn, nil
}

// Range returns the half open [lo,hi) range of global indices owned by part.
func (h *Hash) Range(part int) (lo, hi int, err error) {
	if err = h.checkPart(part); err != nil {
		return
	}
	lo, hi = h.pm.GetBucketRange(part)
	return
}

func (h *Hash) StartIndex(part int) (int, error) {
	lo, _, err := h.Range(part)
	return lo, err
}

func (h *Hash) CountInPart(part int) (int, error) {
	if err := h.checkPart(part); err != nil {
		return 0, err
	}
	return h.pm.GetBucketDimension(part), nil
}

// PartOwns reports whether gid lies in part's range. Invalid input is simply
// not owned.
func (h *Hash) PartOwns(part, gid int) bool {
	if part < 0 || part >= h.NumParts() {
		return false
	}
	lo, hi := h.pm.GetBucketRange(part)
	return gid >= lo && gid < hi
}

// LocalIndex converts a global index to its owning part and the offset within
// that part's range.
func (h *Hash) LocalIndex(gid int) (part, local int, err error) {
	if gid < 0 || gid >= h.Total() {
		return -1, -1, fmt.Errorf("%w: global index %d not in [0,%d)", ErrOutOfRange, gid, h.Total())
	}
	local, _, part = h.pm.GetLocalK(gid)
	return
}

// GlobalIndex is the inverse of LocalIndex.
func (h *Hash) GlobalIndex(part, local int) (int, error) {
	if err := h.checkPart(part); err != nil {
		return -1, err
	}
	if local < 0 || local >= h.pm.GetBucketDimension(part) {
		return -1, fmt.Errorf("%w: local index %d not in part %d of size %d",
			ErrOutOfRange, local, part, h.pm.GetBucketDimension(part))
	}
	return h.pm.GetGlobalK(local, part), nil
}

func (h *Hash) checkPart(part int) error {
	if part < 0 || part >= h.NumParts() {
		return fmt.Errorf("%w: part %d not in [0,%d)", ErrOutOfRange, part, h.NumParts())
	}
	return nil
}

// MergedHash tracks several object classes over the same number of parts.
type MergedHash struct {
	subs []*Hash
}

// NewMergedHash builds one Hash per entry of counts; counts[c] is the total of
// ObjectClass c.
func NewMergedHash(counts []int, nparts int) (*MergedHash, error) {
	mh := &MergedHash{subs: make([]*Hash, len(counts))}
	for c, total := range counts {
		h, err := NewHash(total, nparts)
		if err != nil {
			return nil, fmt.Errorf("class %s: %w", ObjectClass(c), err)
		}
		mh.subs[c] = h
	}
	return mh, nil
}

func (mh *MergedHash) NumClasses() int { return len(mh.subs) }

// Sub returns the per-class hash, nil when the class is not tracked.
func (mh *MergedHash) Sub(class ObjectClass) *Hash {
	if class < 0 || int(class) >= len(mh.subs) {
		return nil
	}
	return mh.subs[class]
}

func (mh *MergedHash) sub(class ObjectClass) (*Hash, error) {
	h := mh.Sub(class)
	if h == nil {
		return nil, fmt.Errorf("%w: object class %s not tracked", ErrOutOfRange, class)
	}
	return h, nil
}

func (mh *MergedHash) Owner(class ObjectClass, gid int) (int, error) {
	h, err := mh.sub(class)
	if err != nil {
		return -1, err
	}
	return h.Owner(gid)
}

func (mh *MergedHash) StartIndex(class ObjectClass, part int) (int, error) {
	h, err := mh.sub(class)
	if err != nil {
		return 0, err
	}
	return h.StartIndex(part)
}

func (mh *MergedHash) CountInPart(class ObjectClass, part int) (int, error) {
	h, err := mh.sub(class)
	if err != nil {
		return 0, err
	}
	return h.CountInPart(part)
}

func (mh *MergedHash) PartOwns(class ObjectClass, part, gid int) bool {
	h := mh.Sub(class)
	return h != nil && h.PartOwns(part, gid)
}
