package mesh

import (
	"bytes"
	"strings"
	"testing"

	"github.com/ghodss/yaml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/halomesh/commpattern"
)

func lineConfig(segments int, length float64, nparts int) Config {
	cfg := DefaultConfig()
	cfg.Cells = []int{segments}
	cfg.Lengths = []float64{length}
	cfg.NumParts = nparts
	return cfg
}

func rectConfig(nx, ny int, lx, ly float64, nparts int) Config {
	cfg := DefaultConfig()
	cfg.Cells = []int{nx, ny}
	cfg.Lengths = []float64{lx, ly}
	cfg.NumParts = nparts
	return cfg
}

func TestLineSinglePart(t *testing.T) {
	f, err := Generate(lineConfig(4, 4.0, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, f.Dim)
	assert.Equal(t, 5, f.NumNodes())
	assert.Equal(t, 0, f.NumGhostNodes())
	for i := 0; i < 5; i++ {
		n := f.Node(i)
		assert.Equal(t, i, n.GlobalIndex)
		assert.Equal(t, 0, n.Rank)
		assert.InDelta(t, float64(i), n.Coord[0], 1.e-12)
	}
	require.Equal(t, 4, f.Cells.Len())
	assert.Equal(t, Line, f.Cells.Type)
	for k := 0; k < 4; k++ {
		assert.Equal(t, []int{k, k + 1}, f.Cells.Connectivity[k])
		assert.Equal(t, k, f.Cells.GlobalIndex[k])
	}

	require.Len(t, f.Boundary, 2)
	xneg, xpos := f.Region("xneg"), f.Region("xpos")
	require.NotNil(t, xneg)
	require.NotNil(t, xpos)
	assert.Nil(t, f.Region("left"))
	assert.Equal(t, Point, xneg.Elements.Type)
	require.Equal(t, 1, xneg.Elements.Len())
	require.Equal(t, 1, xpos.Elements.Len())
	assert.Equal(t, []int{0}, xneg.Elements.Connectivity[0])
	assert.Equal(t, []int{4}, xpos.Elements.Connectivity[0])
	// Boundary ids follow the 4 cells
	assert.Equal(t, 4, xneg.Elements.GlobalIndex[0])
	assert.Equal(t, 5, xpos.Elements.GlobalIndex[0])
}

func TestLineOffsetAndNoBoundary(t *testing.T) {
	cfg := lineConfig(2, 1.0, 1)
	cfg.Offsets = []float64{-0.5}
	cfg.Boundary = false
	f, err := Generate(cfg)
	require.NoError(t, err)
	assert.Empty(t, f.Boundary)
	assert.InDelta(t, -0.5, f.Node(0).Coord[0], 1.e-12)
	assert.InDelta(t, 0.0, f.Node(1).Coord[0], 1.e-12)
	assert.InDelta(t, 0.5, f.Node(2).Coord[0], 1.e-12)
}

func TestLineTwoParts(t *testing.T) {
	// 5 nodes -> [0,3) [3,5); 4 cells -> [0,2) [2,4)
	frags, err := GenerateAll(lineConfig(4, 4.0, 2))
	require.NoError(t, err)
	p0, p1 := frags[0], frags[1]

	assert.Equal(t, []int{0, 1, 2}, p0.Nodes.GlobalIndex)
	assert.Equal(t, [][]int{{0, 1}, {1, 2}}, p0.Cells.Connectivity)
	assert.Equal(t, 1, p0.Region("xneg").Elements.Len())
	assert.Equal(t, 0, p0.Region("xpos").Elements.Len())

	// part 1 owns nodes 3,4 and ghosts node 2 from part 0
	assert.Equal(t, 2, p1.NumOwnedNodes)
	assert.Equal(t, []int{3, 4, 2}, p1.Nodes.GlobalIndex)
	assert.Equal(t, []int{1, 1, 0}, p1.Nodes.Rank)
	assert.True(t, p1.IsGhost(2))
	assert.InDelta(t, 2.0, p1.Node(2).Coord[0], 1.e-12)
	assert.Equal(t, [][]int{{2, 0}, {0, 1}}, p1.Cells.Connectivity)
	assert.Equal(t, []int{2, 3}, p1.Cells.GlobalIndex)
	assert.Equal(t, []int{1}, p1.Region("xpos").Elements.Connectivity[0])
	assert.Equal(t, 5, p1.Region("xpos").Elements.GlobalIndex[0])
}

func TestRectanglePartitionConsistency(t *testing.T) {
	var (
		nx, ny = 4, 2
		lx, ly = 4.0, 2.0
		dx, dy = lx / float64(nx), ly / float64(ny)
	)
	for _, nparts := range []int{1, 2, 3, 5} {
		frags, err := GenerateAll(rectConfig(nx, ny, lx, ly, nparts))
		require.NoError(t, err)
		owned := make(map[int]int)
		ownedNodes := make(map[int]int)
		for p, f := range frags {
			assert.Equal(t, p, f.Part)
			assert.Equal(t, Quad, f.Cells.Type)
			for k := 0; k < f.Cells.Len(); k++ {
				el := f.Cells.At(k)
				owned[el.GlobalIndex]++
				assert.Equal(t, p, el.Rank)
				i, j := el.GlobalIndex%nx, el.GlobalIndex/nx
				want := []int{
					j*(nx+1) + i, j*(nx+1) + i + 1,
					(j+1)*(nx+1) + i + 1, (j+1)*(nx+1) + i,
				}
				for c, loc := range el.Nodes {
					require.True(t, loc >= 0 && loc < f.NumNodes())
					n := f.Node(loc)
					assert.Equal(t, want[c], n.GlobalIndex)
					ni, nj := n.GlobalIndex%(nx+1), n.GlobalIndex/(nx+1)
					assert.InDelta(t, float64(ni)*dx, n.Coord[0], 1.e-12)
					assert.InDelta(t, float64(nj)*dy, n.Coord[1], 1.e-12)
				}
			}
			for i := 0; i < f.NumNodes(); i++ {
				if f.IsGhost(i) {
					assert.NotEqual(t, p, f.Nodes.Rank[i])
					if i > f.NumOwnedNodes {
						// ghosts are ordered by global id
						assert.Less(t, f.Nodes.GlobalIndex[i-1], f.Nodes.GlobalIndex[i])
					}
				} else {
					assert.Equal(t, p, f.Nodes.Rank[i])
					ownedNodes[f.Nodes.GlobalIndex[i]]++
				}
			}
		}
		assert.Len(t, owned, nx*ny)
		for gid := 0; gid < nx*ny; gid++ {
			assert.Equal(t, 1, owned[gid], "element %d with %d parts", gid, nparts)
		}
		assert.Len(t, ownedNodes, (nx+1)*(ny+1))
	}
}

func TestRectangleTwoPartsGhosts(t *testing.T) {
	frags, err := GenerateAll(rectConfig(4, 2, 4.0, 2.0, 2))
	require.NoError(t, err)
	// nodes [0,8) [8,15), cells [0,4) [4,8)
	p0, p1 := frags[0], frags[1]
	assert.Equal(t, 8, p0.NumOwnedNodes)
	assert.Equal(t, []int{8, 9}, p0.Nodes.GlobalIndex[8:])
	assert.Equal(t, []int{1, 1}, p0.Nodes.Rank[8:])
	assert.Equal(t, []int{0, 1, 6, 5}, p0.Cells.Connectivity[0])
	assert.Equal(t, []int{3, 4, 9, 8}, p0.Cells.Connectivity[3])

	assert.Equal(t, 7, p1.NumOwnedNodes)
	assert.Equal(t, []int{5, 6, 7}, p1.Nodes.GlobalIndex[7:])
	// cell 4 = nodes 5,6,11,10 -> ghosts 7,8 and owned 3,2
	assert.Equal(t, []int{7, 8, 3, 2}, p1.Cells.Connectivity[0])
	// cell 7 = nodes 8,9,14,13, all owned by part 1
	assert.Equal(t, []int{0, 1, 6, 5}, p1.Cells.Connectivity[3])
}

func TestRectangleBoundary(t *testing.T) {
	f, err := Generate(rectConfig(4, 2, 4.0, 2.0, 1))
	require.NoError(t, err)
	names := []string{}
	for _, r := range f.Boundary {
		names = append(names, r.Name)
		assert.Equal(t, Line, r.Elements.Type)
	}
	assert.Equal(t, []string{"left", "right", "bottom", "top"}, names)

	left, right := f.Region("left").Elements, f.Region("right").Elements
	bottom, top := f.Region("bottom").Elements, f.Region("top").Elements
	assert.Equal(t, [][]int{{0, 5}, {5, 10}}, left.Connectivity)
	assert.Equal(t, [][]int{{9, 4}, {14, 9}}, right.Connectivity)
	assert.Equal(t, [][]int{{0, 1}, {1, 2}, {2, 3}, {3, 4}}, bottom.Connectivity)
	assert.Equal(t, [][]int{{11, 10}, {12, 11}, {13, 12}, {14, 13}}, top.Connectivity)
	assert.Equal(t, []int{8, 9}, left.GlobalIndex)
	assert.Equal(t, []int{10, 11}, right.GlobalIndex)
	assert.Equal(t, []int{12, 13, 14, 15}, bottom.GlobalIndex)
	assert.Equal(t, []int{16, 17, 18, 19}, top.GlobalIndex)

	// Across parts every boundary face appears once with the same id
	frags, err := GenerateAll(rectConfig(4, 2, 4.0, 2.0, 3))
	require.NoError(t, err)
	seen := make(map[int]int)
	for _, pf := range frags {
		for _, r := range pf.Boundary {
			for k := 0; k < r.Elements.Len(); k++ {
				seen[r.Elements.GlobalIndex[k]]++
				assert.Equal(t, pf.Part, r.Elements.Rank[k])
			}
		}
	}
	assert.Len(t, seen, 12)
	for gid := 8; gid < 20; gid++ {
		assert.Equal(t, 1, seen[gid])
	}
}

func TestGenerateIsDeterministic(t *testing.T) {
	cfg := rectConfig(5, 3, 1.0, 0.6, 4)
	cfg.Offsets = []float64{1, -1}
	cfg.Part = 2
	a, err := Generate(cfg)
	require.NoError(t, err)
	b, err := Generate(cfg)
	require.NoError(t, err)
	assert.Equal(t, a.Nodes.GlobalIndex, b.Nodes.GlobalIndex)
	assert.Equal(t, a.Nodes.Rank, b.Nodes.Rank)
	assert.Equal(t, a.Nodes.Coords.RawMatrix().Data, b.Nodes.Coords.RawMatrix().Data)
	assert.Equal(t, a.Cells, b.Cells)
	assert.Equal(t, a.Boundary, b.Boundary)
}

func TestMorePartsThanCells(t *testing.T) {
	frags, err := GenerateAll(lineConfig(2, 1.0, 4))
	require.NoError(t, err)
	// 3 nodes -> parts 0,1,2 own one each; 2 cells -> parts 0,1
	assert.Equal(t, 0, frags[3].NumNodes())
	assert.Equal(t, 0, frags[3].Cells.Len())
	assert.Nil(t, frags[3].Nodes.Coords)
	assert.Equal(t, 1, frags[2].NumNodes())
	assert.Equal(t, []int{1, 2}, frags[1].Nodes.GlobalIndex)
}

func TestGenerateSetupErrors(t *testing.T) {
	g := NewGenerator(lineConfig(4, 1.0, 1))
	assert.ErrorIs(t, g.Generate(nil), ErrSetup)

	bad := []Config{
		{Cells: []int{1, 2, 3}, Lengths: []float64{1, 1, 1}, NumParts: 1},
		{Cells: nil, Lengths: nil, NumParts: 1},
		{Cells: []int{4}, Lengths: []float64{1, 2}, NumParts: 1},
		{Cells: []int{4}, Lengths: []float64{1}, Offsets: []float64{0, 0}, NumParts: 1},
		{Cells: []int{0}, Lengths: []float64{1}, NumParts: 1},
		{Cells: []int{4, 2}, Lengths: []float64{1, -1}, NumParts: 1},
		{Cells: []int{4}, Lengths: []float64{1}, NumParts: 0},
		{Cells: []int{4}, Lengths: []float64{1}, NumParts: 2, Part: 2},
		{Cells: []int{4}, Lengths: []float64{1}, NumParts: 2, Part: -1},
	}
	for i, cfg := range bad {
		f := &Fragment{Part: 99}
		err := NewGenerator(cfg).Generate(f)
		assert.ErrorIs(t, err, ErrSetup, "case %d", i)
		// destination untouched on failure
		assert.Equal(t, 99, f.Part)
	}
	_, err := GenerateAll(Config{Cells: []int{4}, Lengths: []float64{1}})
	assert.ErrorIs(t, err, ErrSetup)
}

func TestRegisterNodes(t *testing.T) {
	frags, err := GenerateAll(rectConfig(4, 2, 4.0, 2.0, 2))
	require.NoError(t, err)
	f := frags[1]
	p := commpattern.New("nodes", f.Part)
	require.NoError(t, f.RegisterNodes(p))
	require.NoError(t, p.Rebuild())
	assert.Equal(t, f.NumNodes(), p.Len())
	assert.Equal(t, f.NumOwnedNodes, p.NumUpdatable())
	for i := 0; i < f.NumNodes(); i++ {
		assert.Equal(t, !f.IsGhost(i), p.IsUpdatable(i))
		assert.Equal(t, uint64(f.Nodes.GlobalIndex[i]), p.Entry(i).GID)
	}
	assert.Equal(t, []int{0}, p.RecvRanks())
	assert.Equal(t, []int{7, 8, 9}, p.RecvBlock(0))

	p.Freeze()
	assert.ErrorIs(t, f.RegisterNodes(p), commpattern.ErrFrozen)
}

func TestPrintAndExport(t *testing.T) {
	f, err := Generate(lineConfig(2, 2.0, 1))
	require.NoError(t, err)
	var buf bytes.Buffer
	f.PrintStatistics(&buf)
	assert.Contains(t, buf.String(), "Nodes: 3 (3 owned, 0 ghost)")
	assert.Contains(t, buf.String(), "Cells: 2 Line")
	assert.Contains(t, buf.String(), "Boundary xpos: 1 Point")

	data, err := f.ExportYAML()
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "cellType: Line"))
	var back fragmentRecord
	require.NoError(t, yaml.Unmarshal(data, &back))
	assert.Equal(t, 3, len(back.Nodes))
	assert.Equal(t, []float64{2}, back.Nodes[2].Coord)
	assert.Equal(t, []int{1, 2}, back.Cells[1].Nodes)
	assert.Equal(t, "xneg", back.Boundary[0].Name)
}
