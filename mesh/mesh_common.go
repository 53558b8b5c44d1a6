package mesh

import (
	"fmt"
	"io"

	"gonum.org/v1/gonum/mat"

	"github.com/notargets/halomesh/commpattern"
)

// ElementType represents the shape of a mesh entity
type ElementType uint8

const (
	Point ElementType = iota
	Line
	Quad
)

func (e ElementType) String() string {
	return [...]string{"Point", "Line", "Quad"}[e]
}

// NumVertices is the connectivity width of the element type
func (e ElementType) NumVertices() int {
	return [...]int{1, 2, 4}[e]
}

// Node is a row view of the fragment's node storage
type Node struct {
	LocalIndex  int
	GlobalIndex int
	Rank        int
	Coord       []float64
}

// Nodes is columnar node storage indexed by local node index. Owned nodes
// come first, ghosts follow.
type Nodes struct {
	GlobalIndex []int
	Rank        []int
	Coords      *mat.Dense // [nnodes][dim], nil when the part holds no nodes
}

// Element is a row view of an Elements table
type Element struct {
	LocalIndex  int
	GlobalIndex int
	Rank        int
	Nodes       []int // Local node indices
}

// Elements is a connectivity table of one element type
type Elements struct {
	Type         ElementType
	Connectivity [][]int // Element to local node connectivity
	GlobalIndex  []int
	Rank         []int
}

func newElements(et ElementType, capacity int) *Elements {
	return &Elements{
		Type:         et,
		Connectivity: make([][]int, 0, capacity),
		GlobalIndex:  make([]int, 0, capacity),
		Rank:         make([]int, 0, capacity),
	}
}

func (e *Elements) add(nodes []int, gid, rank int) {
	e.Connectivity = append(e.Connectivity, nodes)
	e.GlobalIndex = append(e.GlobalIndex, gid)
	e.Rank = append(e.Rank, rank)
}

func (e *Elements) Len() int { return len(e.GlobalIndex) }

func (e *Elements) At(i int) Element {
	return Element{
		LocalIndex:  i,
		GlobalIndex: e.GlobalIndex[i],
		Rank:        e.Rank[i],
		Nodes:       e.Connectivity[i],
	}
}

// Region is a named group of boundary entities
type Region struct {
	Name     string
	Elements *Elements
}

// Fragment is the part-local piece of a distributed mesh: owned and ghost
// nodes, owned cells and the owned faces of each boundary region.
type Fragment struct {
	Dim           int
	Part          int
	NumParts      int
	NumOwnedNodes int

	Nodes    Nodes
	Cells    *Elements
	Boundary []Region
}

func (f *Fragment) NumNodes() int      { return len(f.Nodes.GlobalIndex) }
func (f *Fragment) NumGhostNodes() int { return f.NumNodes() - f.NumOwnedNodes }
func (f *Fragment) IsGhost(i int) bool { return i >= f.NumOwnedNodes }

func (f *Fragment) Node(i int) Node {
	return Node{
		LocalIndex:  i,
		GlobalIndex: f.Nodes.GlobalIndex[i],
		Rank:        f.Nodes.Rank[i],
		Coord:       mat.Row(nil, i, f.Nodes.Coords),
	}
}

// Region returns the named boundary region, nil if it was not generated.
func (f *Fragment) Region(name string) *Region {
	for i := range f.Boundary {
		if f.Boundary[i].Name == name {
			return &f.Boundary[i]
		}
	}
	return nil
}

// RegisterNodes adds every local node, in local order, to a comm pattern
// with its owning rank. The caller rebuilds the pattern.
func (f *Fragment) RegisterNodes(p *commpattern.Pattern) error {
	for i, gid := range f.Nodes.GlobalIndex {
		if err := p.Add(uint64(gid), f.Nodes.Rank[i]); err != nil {
			return err
		}
	}
	return nil
}

// PrintStatistics prints fragment statistics
func (f *Fragment) PrintStatistics(w io.Writer) {
	fmt.Fprintf(w, "Fragment %d of %d (%dD):\n", f.Part, f.NumParts, f.Dim)
	fmt.Fprintf(w, "  Nodes: %d (%d owned, %d ghost)\n", f.NumNodes(), f.NumOwnedNodes, f.NumGhostNodes())
	fmt.Fprintf(w, "  Cells: %d %s\n", f.Cells.Len(), f.Cells.Type)
	for _, r := range f.Boundary {
		fmt.Fprintf(w, "  Boundary %s: %d %s\n", r.Name, r.Elements.Len(), r.Elements.Type)
	}
}
