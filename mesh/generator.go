package mesh

import (
	"errors"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/halomesh/partition"
	"github.com/notargets/halomesh/utils"
)

var ErrSetup = errors.New("setup error")

// Config describes a structured line or rectangle and which part to build.
type Config struct {
	Cells    []int     // Segments per axis, 1 or 2 entries
	Lengths  []float64 // Physical length per axis
	Offsets  []float64 // Origin per axis, empty means zero
	Part     int
	NumParts int
	Boundary bool // Generate boundary regions
}

func DefaultConfig() Config {
	return Config{
		Part:     0,
		NumParts: 1,
		Boundary: true,
	}
}

// Generator builds the local fragment of a structured mesh for one part.
// Every part evaluates the same partition hash, so no communication is needed.
type Generator struct {
	cfg Config
}

func NewGenerator(cfg Config) *Generator {
	return &Generator{cfg: cfg}
}

// Generate builds a fresh fragment into dst. dst is only written on success.
func Generate(cfg Config) (*Fragment, error) {
	f := &Fragment{}
	if err := NewGenerator(cfg).Generate(f); err != nil {
		return nil, err
	}
	return f, nil
}

// GenerateAll builds the fragments of every part concurrently.
func GenerateAll(cfg Config) ([]*Fragment, error) {
	if cfg.NumParts <= 0 {
		return nil, fmt.Errorf("%w: number of parts must be positive, got %d", ErrSetup, cfg.NumParts)
	}
	var (
		frags = make([]*Fragment, cfg.NumParts)
		eg    errgroup.Group
	)
	for np := 0; np < cfg.NumParts; np++ {
		np := np
		pcfg := cfg
		pcfg.Part = np
		eg.Go(func() (err error) {
			frags[np], err = Generate(pcfg)
			return
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return frags, nil
}

// structured grid index arithmetic shared by the line and rectangle cases
type grid struct {
	dim    int
	nodes  utils.R2 // (nx+1) x (ny+1), ny = 0 for a line
	cells  utils.R2 // nx x ny, ny = 1 for a line
	step   [2]float64
	offset [2]float64
}

func (cfg Config) grid() (g grid, err error) {
	g.dim = len(cfg.Cells)
	switch {
	case g.dim != 1 && g.dim != 2:
		err = fmt.Errorf("%w: %d cell counts given, only 1D and 2D supported", ErrSetup, g.dim)
	case len(cfg.Lengths) != g.dim:
		err = fmt.Errorf("%w: %d lengths given for %d cell counts", ErrSetup, len(cfg.Lengths), g.dim)
	case len(cfg.Offsets) != 0 && len(cfg.Offsets) != g.dim:
		err = fmt.Errorf("%w: %d offsets given for %d cell counts", ErrSetup, len(cfg.Offsets), g.dim)
	case cfg.NumParts <= 0:
		err = fmt.Errorf("%w: number of parts must be positive, got %d", ErrSetup, cfg.NumParts)
	case cfg.Part < 0 || cfg.Part >= cfg.NumParts:
		err = fmt.Errorf("%w: part %d not in [0,%d)", ErrSetup, cfg.Part, cfg.NumParts)
	}
	if err != nil {
		return
	}
	for d := 0; d < g.dim; d++ {
		if cfg.Cells[d] <= 0 || cfg.Lengths[d] <= 0 {
			err = fmt.Errorf("%w: axis %d needs positive cells and length, got %d and %g",
				ErrSetup, d, cfg.Cells[d], cfg.Lengths[d])
			return
		}
		g.step[d] = cfg.Lengths[d] / float64(cfg.Cells[d])
		if len(cfg.Offsets) != 0 {
			g.offset[d] = cfg.Offsets[d]
		}
	}
	nx, ny := cfg.Cells[0], 0
	if g.dim == 2 {
		ny = cfg.Cells[1]
	}
	g.nodes = utils.NewR2(nx+1, ny+1)
	g.cells = utils.NewR2(nx, max(ny, 1))
	return
}

func (g grid) cellType() ElementType {
	if g.dim == 1 {
		return Line
	}
	return Quad
}

// cellNodes lists the corner node ids of a cell, ascending for segments and
// counter-clockwise from the lower left corner for quads.
func (g grid) cellNodes(c int) []int {
	i, j := g.cells.IJ(c)
	if g.dim == 1 {
		return []int{g.nodes.At(i, 0), g.nodes.At(i+1, 0)}
	}
	return []int{
		g.nodes.At(i, j),
		g.nodes.At(i+1, j),
		g.nodes.At(i+1, j+1),
		g.nodes.At(i, j+1),
	}
}

func (g grid) coord(gid int, row []float64) {
	i, j := g.nodes.IJ(gid)
	row[0] = float64(i)*g.step[0] + g.offset[0]
	if g.dim == 2 {
		row[1] = float64(j)*g.step[1] + g.offset[1]
	}
}

// side is one boundary of the domain: the cells touching it and the node
// column or row along it, in traversal order.
type side struct {
	name    string
	cells   utils.Index
	nodes   utils.Index
	reverse bool
}

func (g grid) sides() []side {
	if g.dim == 1 {
		return []side{
			{name: "xneg", cells: g.cells.Range(0, 0), nodes: g.nodes.Range(0, 0)},
			{name: "xpos", cells: g.cells.Range("end", 0), nodes: g.nodes.Range("end", 0)},
		}
	}
	return []side{
		{name: "left", cells: g.cells.Range(0, ":"), nodes: g.nodes.Range(0, ":")},
		{name: "right", cells: g.cells.Range("end", ":"), nodes: g.nodes.Range("end", ":"), reverse: true},
		{name: "bottom", cells: g.cells.Range(":", 0), nodes: g.nodes.Range(":", 0)},
		{name: "top", cells: g.cells.Range(":", "end"), nodes: g.nodes.Range(":", "end"), reverse: true},
	}
}

func (s side) faceNodes(k int) []int {
	if len(s.nodes) == 1 {
		return []int{s.nodes[0]}
	}
	if s.reverse {
		return []int{s.nodes[k+1], s.nodes[k]}
	}
	return []int{s.nodes[k], s.nodes[k+1]}
}

func (g grid) faceType() ElementType {
	if g.dim == 1 {
		return Point
	}
	return Line
}

func (g *Generator) Generate(dst *Fragment) error {
	if dst == nil {
		return fmt.Errorf("%w: mesh destination not set", ErrSetup)
	}
	gr, err := g.cfg.grid()
	if err != nil {
		return err
	}
	var (
		part = g.cfg.Part
		hash *partition.MergedHash
	)
	if hash, err = partition.NewMergedHash([]int{gr.nodes.Size(), gr.cells.Size()}, g.cfg.NumParts); err != nil {
		return fmt.Errorf("%w: %v", ErrSetup, err)
	}
	var (
		nodeHash     = hash.Sub(partition.Nodes)
		cellHash     = hash.Sub(partition.Elements)
		nOwned, _    = nodeHash.CountInPart(part)
		cellStart, _ = cellHash.StartIndex(part)
		nCells, _    = cellHash.CountInPart(part)
	)

	// Ghost nodes are referenced by owned cells but owned by another part
	ghosts := make(map[int]int)
	for c := cellStart; c < cellStart+nCells; c++ {
		for _, gid := range gr.cellNodes(c) {
			if !nodeHash.PartOwns(part, gid) {
				ghosts[gid] = -1
			}
		}
	}
	ghostIDs := make([]int, 0, len(ghosts))
	for gid := range ghosts {
		ghostIDs = append(ghostIDs, gid)
	}
	sort.Ints(ghostIDs)
	for n, gid := range ghostIDs {
		ghosts[gid] = nOwned + n
	}
	toLocal := func(gids []int) []int {
		loc := make([]int, len(gids))
		for n, gid := range gids {
			if owner, l, err := nodeHash.LocalIndex(gid); err == nil && owner == part {
				loc[n] = l
				continue
			}
			l, ok := ghosts[gid]
			if !ok || l < 0 {
				panic(fmt.Sprintf("part %d: ghost node %d unresolved", part, gid))
			}
			loc[n] = l
		}
		return loc
	}

	frag := Fragment{
		Dim:           gr.dim,
		Part:          part,
		NumParts:      g.cfg.NumParts,
		NumOwnedNodes: nOwned,
	}
	nNodes := nOwned + len(ghostIDs)
	frag.Nodes = Nodes{
		GlobalIndex: make([]int, nNodes),
		Rank:        make([]int, nNodes),
	}
	if nNodes > 0 {
		frag.Nodes.Coords = mat.NewDense(nNodes, gr.dim, nil)
	}
	row := make([]float64, gr.dim)
	setNode := func(loc, gid, rank int) {
		gr.coord(gid, row)
		frag.Nodes.Coords.SetRow(loc, row)
		frag.Nodes.GlobalIndex[loc] = gid
		frag.Nodes.Rank[loc] = rank
	}
	for loc := 0; loc < nOwned; loc++ {
		gid, err := nodeHash.GlobalIndex(part, loc)
		if err != nil {
			panic(fmt.Sprintf("part %d: owned node %d has no global index: %v", part, loc, err))
		}
		setNode(loc, gid, part)
	}
	for n, gid := range ghostIDs {
		owner, err := nodeHash.Owner(gid)
		if err != nil {
			panic(fmt.Sprintf("part %d: ghost node %d has no owner: %v", part, gid, err))
		}
		setNode(nOwned+n, gid, owner)
	}

	frag.Cells = newElements(gr.cellType(), nCells)
	for c := cellStart; c < cellStart+nCells; c++ {
		frag.Cells.add(toLocal(gr.cellNodes(c)), c, part)
	}

	if g.cfg.Boundary {
		// Boundary ids continue after the cells, counted over every candidate
		// face whether or not this part owns it
		bdryID := gr.cells.Size()
		for _, s := range gr.sides() {
			region := Region{Name: s.name, Elements: newElements(gr.faceType(), 0)}
			for k, c := range s.cells {
				if cellHash.PartOwns(part, c) {
					region.Elements.add(toLocal(s.faceNodes(k)), bdryID, part)
				}
				bdryID++
			}
			frag.Boundary = append(frag.Boundary, region)
		}
	}

	*dst = frag
	return nil
}
