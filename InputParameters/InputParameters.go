package InputParameters

import (
	"fmt"

	"github.com/ghodss/yaml"

	"github.com/notargets/halomesh/mesh"
)

// Parameters obtained from the YAML input file
type MeshParameters struct {
	Title    string    `yaml:"Title"`
	Cells    []int     `yaml:"Cells"`   // Segments per axis, one entry for a line
	Lengths  []float64 `yaml:"Lengths"` // Physical length per axis
	Offsets  []float64 `yaml:"Offsets"`
	Parts    int       `yaml:"Parts"`
	Part     int       `yaml:"Part"`
	Boundary *bool     `yaml:"Boundary"` // Omitted means generate boundary regions
}

func (ip *MeshParameters) Parse(data []byte) error {
	return yaml.Unmarshal(data, ip)
}

// Config maps the parameters onto a generator config, filling defaults for
// omitted fields.
func (ip *MeshParameters) Config() mesh.Config {
	cfg := mesh.DefaultConfig()
	cfg.Cells = ip.Cells
	cfg.Lengths = ip.Lengths
	cfg.Offsets = ip.Offsets
	cfg.Part = ip.Part
	if ip.Parts != 0 {
		cfg.NumParts = ip.Parts
	}
	if ip.Boundary != nil {
		cfg.Boundary = *ip.Boundary
	}
	return cfg
}

func (ip *MeshParameters) Print() {
	fmt.Printf("\"%s\"\t\t= Title\n", ip.Title)
	fmt.Printf("%v\t\t\t= Cells\n", ip.Cells)
	fmt.Printf("%v\t\t= Lengths\n", ip.Lengths)
	if len(ip.Offsets) != 0 {
		fmt.Printf("%v\t\t= Offsets\n", ip.Offsets)
	}
	fmt.Printf("[%d/%d]\t\t\t= Part/Parts\n", ip.Part, ip.Parts)
	if ip.Boundary != nil {
		fmt.Printf("[%t]\t\t\t= Boundary\n", *ip.Boundary)
	}
}
