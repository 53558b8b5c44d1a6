/*
Copyright © 2020 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/notargets/halomesh/InputParameters"
	"github.com/notargets/halomesh/mesh"
	"github.com/notargets/halomesh/utils"
)

type GenerateModel struct {
	InputFile string
	OutDir    string
	All       bool
	Verbose   bool
	Params    InputParameters.MeshParameters
}

// GenerateCmd represents the generate command
var GenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate the local fragment of one part, or of every part with --all",
	Long: `
Generates a structured line (one cell count) or rectangle (two cell counts)
partitioned over a number of parts. Each fragment holds its owned nodes, the
ghost nodes its cells reference, its cells and its boundary faces.

halomesh generate -I mesh.yaml --all --out meshdir`,
	RunE: func(cmd *cobra.Command, args []string) error {
		gm := &GenerateModel{}
		gm.InputFile, _ = cmd.Flags().GetString("inputFile")
		gm.All, _ = cmd.Flags().GetBool("all")
		gm.Verbose, _ = cmd.Flags().GetBool("verbose")
		gm.OutDir = viper.GetString("out")
		gm.Params.Cells, _ = cmd.Flags().GetIntSlice("cells")
		gm.Params.Lengths, _ = cmd.Flags().GetFloat64Slice("lengths")
		gm.Params.Offsets, _ = cmd.Flags().GetFloat64Slice("offsets")
		gm.Params.Part, _ = cmd.Flags().GetInt("part")
		gm.Params.Parts = viper.GetInt("parts")
		if noBdry, _ := cmd.Flags().GetBool("noBoundary"); noBdry {
			gm.Params.Boundary = new(bool)
		}
		return RunGenerate(gm, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(GenerateCmd)
	GenerateCmd.Flags().StringP("inputFile", "I", "", "YAML file with mesh parameters, overrides the mesh flags")
	GenerateCmd.Flags().IntSlice("cells", []int{4}, "cells per axis, one entry for a line, two for a rectangle")
	GenerateCmd.Flags().Float64Slice("lengths", []float64{1}, "physical length per axis")
	GenerateCmd.Flags().Float64Slice("offsets", nil, "origin per axis")
	GenerateCmd.Flags().IntP("part", "p", 0, "part to generate")
	GenerateCmd.Flags().IntP("parts", "n", 1, "number of parts")
	GenerateCmd.Flags().BoolP("all", "a", false, "generate every part and report partition statistics")
	GenerateCmd.Flags().Bool("noBoundary", false, "skip boundary regions")
	GenerateCmd.Flags().StringP("out", "o", "", "directory to write part_<n>.yaml fragments into")
	GenerateCmd.Flags().BoolP("verbose", "v", false, "print the comm pattern of each fragment")
	_ = viper.BindPFlag("parts", GenerateCmd.Flags().Lookup("parts"))
	_ = viper.BindPFlag("out", GenerateCmd.Flags().Lookup("out"))
}

func readParameters(gm *GenerateModel) error {
	if len(gm.InputFile) == 0 {
		return nil
	}
	data, err := os.ReadFile(gm.InputFile)
	if err != nil {
		return err
	}
	gm.Params = InputParameters.MeshParameters{}
	if err = gm.Params.Parse(data); err != nil {
		return fmt.Errorf("parsing %s: %w", gm.InputFile, err)
	}
	gm.Params.Print()
	return nil
}

func RunGenerate(gm *GenerateModel, w io.Writer) (err error) {
	if err = readParameters(gm); err != nil {
		return
	}
	var (
		cfg   = gm.Params.Config()
		frags []*mesh.Fragment
	)
	if gm.All {
		if frags, err = mesh.GenerateAll(cfg); err != nil {
			return
		}
	} else {
		var f *mesh.Fragment
		if f, err = mesh.Generate(cfg); err != nil {
			return
		}
		frags = []*mesh.Fragment{f}
	}
	for _, f := range frags {
		f.PrintStatistics(w)
		if gm.Verbose {
			if err = printPattern(f, w); err != nil {
				return
			}
		}
	}
	if gm.All {
		mesh.AnalyzePartition(frags).Print()
	}
	if gm.Verbose {
		log.Printf("Memory: %s", utils.GetMemUsage())
	}
	if len(gm.OutDir) == 0 {
		return
	}
	if err = os.MkdirAll(gm.OutDir, 0o755); err != nil {
		return
	}
	for _, f := range frags {
		if err = writeFragment(f, gm.OutDir); err != nil {
			return
		}
	}
	return
}

func fragmentFile(dir string, part int) string {
	return filepath.Join(dir, fmt.Sprintf("part_%d.yaml", part))
}

func writeFragment(f *mesh.Fragment, dir string) error {
	data, err := f.ExportYAML()
	if err != nil {
		return err
	}
	return os.WriteFile(fragmentFile(dir, f.Part), data, 0o644)
}
