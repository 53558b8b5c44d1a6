package mesh

import (
	"github.com/ghodss/yaml"
	"gonum.org/v1/gonum/mat"
)

type nodeRecord struct {
	Local  int       `json:"local"`
	Global int       `json:"global"`
	Rank   int       `json:"rank"`
	Coord  []float64 `json:"coord"`
}

type elementRecord struct {
	Local  int   `json:"local"`
	Global int   `json:"global"`
	Rank   int   `json:"rank"`
	Nodes  []int `json:"nodes"`
}

type regionRecord struct {
	Name     string          `json:"name"`
	Type     string          `json:"type"`
	Elements []elementRecord `json:"elements"`
}

type fragmentRecord struct {
	Dim           int             `json:"dim"`
	Part          int             `json:"part"`
	NumParts      int             `json:"numParts"`
	NumOwnedNodes int             `json:"numOwnedNodes"`
	Nodes         []nodeRecord    `json:"nodes"`
	CellType      string          `json:"cellType"`
	Cells         []elementRecord `json:"cells"`
	Boundary      []regionRecord  `json:"boundary,omitempty"`
}

func elementRecords(e *Elements) []elementRecord {
	recs := make([]elementRecord, e.Len())
	for i := range recs {
		el := e.At(i)
		recs[i] = elementRecord{el.LocalIndex, el.GlobalIndex, el.Rank, el.Nodes}
	}
	return recs
}

// ExportYAML renders the fragment as the YAML document consumed by
// downstream solvers.
func (f *Fragment) ExportYAML() ([]byte, error) {
	rec := fragmentRecord{
		Dim:           f.Dim,
		Part:          f.Part,
		NumParts:      f.NumParts,
		NumOwnedNodes: f.NumOwnedNodes,
		Nodes:         make([]nodeRecord, f.NumNodes()),
		CellType:      f.Cells.Type.String(),
		Cells:         elementRecords(f.Cells),
	}
	for i := range rec.Nodes {
		rec.Nodes[i] = nodeRecord{
			Local:  i,
			Global: f.Nodes.GlobalIndex[i],
			Rank:   f.Nodes.Rank[i],
			Coord:  mat.Row(nil, i, f.Nodes.Coords),
		}
	}
	for _, r := range f.Boundary {
		rec.Boundary = append(rec.Boundary, regionRecord{
			Name:     r.Name,
			Type:     r.Elements.Type.String(),
			Elements: elementRecords(r.Elements),
		})
	}
	return yaml.Marshal(rec)
}
