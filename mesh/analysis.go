package mesh

import (
	"log"
	"sort"

	"github.com/james-bowman/sparse"
	"gonum.org/v1/gonum/floats"
)

// PartStats holds statistics for a single part
type PartStats struct {
	ID            int
	NumCells      int
	NumOwnedNodes int
	NumGhostNodes int
	NumBoundary   int
	Neighbors     map[int]int // neighbor part -> ghost nodes received from it
}

// PartitionStats summarizes a complete set of fragments
type PartitionStats struct {
	Parts       []PartStats
	GhostVolume *sparse.CSR // [receiver][owner] ghost node counts
	TotalGhosts int
	MinLoad     float64
	MaxLoad     float64
	AvgLoad     float64
	Imbalance   float64 // MaxLoad/AvgLoad - 1
}

// AnalyzePartition computes and reports partition quality metrics for the
// fragments of every part, frags[p] being part p.
func AnalyzePartition(frags []*Fragment) *PartitionStats {
	var (
		nparts = len(frags)
		ps     = &PartitionStats{Parts: make([]PartStats, nparts)}
		loads  = make([]float64, nparts)
	)
	if nparts == 0 {
		return ps
	}
	volume := sparse.NewDOK(nparts, nparts)
	for p, f := range frags {
		stats := &ps.Parts[p]
		stats.ID = p
		stats.NumCells = f.Cells.Len()
		stats.NumOwnedNodes = f.NumOwnedNodes
		stats.NumGhostNodes = f.NumGhostNodes()
		stats.Neighbors = make(map[int]int)
		for _, r := range f.Boundary {
			stats.NumBoundary += r.Elements.Len()
		}
		for i := f.NumOwnedNodes; i < f.NumNodes(); i++ {
			owner := f.Nodes.Rank[i]
			stats.Neighbors[owner]++
			volume.Set(p, owner, volume.At(p, owner)+1)
		}
		ps.TotalGhosts += stats.NumGhostNodes
		loads[p] = float64(stats.NumCells)
	}
	ps.GhostVolume = volume.ToCSR()

	ps.MinLoad = floats.Min(loads)
	ps.MaxLoad = floats.Max(loads)
	ps.AvgLoad = floats.Sum(loads) / float64(nparts)
	if ps.AvgLoad > 0 {
		ps.Imbalance = ps.MaxLoad/ps.AvgLoad - 1.0
	}
	return ps
}

// Print reports the statistics through the standard logger
func (ps *PartitionStats) Print() {
	log.Printf("Partition Analysis:")
	log.Printf("  Parts: %d", len(ps.Parts))
	log.Printf("  Ghost nodes: %d", ps.TotalGhosts)
	log.Printf("  Load imbalance: %.2f%%", ps.Imbalance*100)
	log.Printf("  Load range: [%.0f, %.0f], avg: %.1f", ps.MinLoad, ps.MaxLoad, ps.AvgLoad)

	log.Printf("Per-part statistics:")
	for _, stats := range ps.Parts {
		log.Printf("  Part %d:", stats.ID)
		log.Printf("    Cells: %d", stats.NumCells)
		log.Printf("    Nodes: %d owned, %d ghost", stats.NumOwnedNodes, stats.NumGhostNodes)
		log.Printf("    Boundary faces: %d", stats.NumBoundary)
		log.Printf("    Neighbors: %d", len(stats.Neighbors))
	}

	if ps.GhostVolume == nil {
		return
	}
	type link struct{ to, from, n int }
	var links []link
	ps.GhostVolume.DoNonZero(func(i, j int, v float64) {
		links = append(links, link{i, j, int(v)})
	})
	sort.Slice(links, func(a, b int) bool {
		if links[a].to != links[b].to {
			return links[a].to < links[b].to
		}
		return links[a].from < links[b].from
	})
	log.Printf("Halo statistics:")
	for _, l := range links {
		log.Printf("  Part %d <- %d: %d ghost nodes", l.to, l.from, l.n)
	}
}
