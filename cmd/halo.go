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
	"math"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/halomesh/commpattern"
	"github.com/notargets/halomesh/halo"
	"github.com/notargets/halomesh/mesh"
)

// HaloCmd represents the halo command
var HaloCmd = &cobra.Command{
	Use:   "halo",
	Short: "Generate every part and refresh ghost node coordinates by halo exchange",
	Long: `
Generates all parts in process, builds a node comm pattern per part and runs a
halo update of the x coordinate with ghost values cleared beforehand. Reports
whether every ghost received its owner's value.

halomesh halo --cells 8,4 --lengths 2,1 --parts 3`,
	RunE: func(cmd *cobra.Command, args []string) error {
		gm := &GenerateModel{All: true}
		gm.InputFile, _ = cmd.Flags().GetString("inputFile")
		gm.Verbose, _ = cmd.Flags().GetBool("verbose")
		gm.Params.Cells, _ = cmd.Flags().GetIntSlice("cells")
		gm.Params.Lengths, _ = cmd.Flags().GetFloat64Slice("lengths")
		gm.Params.Parts, _ = cmd.Flags().GetInt("parts")
		return RunHalo(gm, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(HaloCmd)
	HaloCmd.Flags().StringP("inputFile", "I", "", "YAML file with mesh parameters, overrides the mesh flags")
	HaloCmd.Flags().IntSlice("cells", []int{4, 2}, "cells per axis")
	HaloCmd.Flags().Float64Slice("lengths", []float64{4, 2}, "physical length per axis")
	HaloCmd.Flags().IntP("parts", "n", 2, "number of parts")
	HaloCmd.Flags().BoolP("verbose", "v", false, "print the comm pattern of each part")
}

func nodePattern(f *mesh.Fragment) (*commpattern.Pattern, error) {
	p := commpattern.New("nodes", f.Part)
	if err := f.RegisterNodes(p); err != nil {
		return nil, err
	}
	return p, nil
}

func printPattern(f *mesh.Fragment, w io.Writer) error {
	p, err := nodePattern(f)
	if err != nil {
		return err
	}
	if err = p.Rebuild(); err != nil {
		return err
	}
	p.Print(w)
	return nil
}

func RunHalo(gm *GenerateModel, w io.Writer) (err error) {
	if err = readParameters(gm); err != nil {
		return
	}
	var (
		cfg   = gm.Params.Config()
		frags []*mesh.Fragment
	)
	if frags, err = mesh.GenerateAll(cfg); err != nil {
		return
	}
	var (
		net    = halo.NewNetwork(cfg.NumParts)
		exs    = make([]*halo.Exchanger, cfg.NumParts)
		fields = make([]*commpattern.Field[float64], cfg.NumParts)
		values = make([][]float64, cfg.NumParts)
	)
	for np, f := range frags {
		fields[np] = commpattern.NewField[float64]("x", f.NumNodes())
		for i := range fields[np].Values {
			if f.IsGhost(i) {
				fields[np].Values[i] = math.NaN()
			} else {
				fields[np].Values[i] = f.Node(i).Coord[0]
			}
		}
		var p *commpattern.Pattern
		if p, err = nodePattern(f); err != nil {
			return
		}
		if err = p.Register(fields[np]); err != nil {
			return
		}
		if err = p.Rebuild(); err != nil {
			return
		}
		if gm.Verbose {
			p.Print(w)
		}
		if exs[np], err = halo.NewExchanger(net, np, p); err != nil {
			return
		}
		values[np] = fields[np].Values
	}
	if err = halo.Setup(exs); err != nil {
		return
	}
	if err = halo.Update(exs, values); err != nil {
		return
	}
	var bad int
	for np, f := range frags {
		if f.NumNodes() == 0 {
			continue
		}
		if !floats.Equal(mat.Col(nil, 0, f.Nodes.Coords), values[np]) {
			fmt.Fprintf(w, "part %d: ghost values disagree with owners\n", np)
			bad++
		}
		fmt.Fprintf(w, "part %d: %d ghosts refreshed from %d parts\n",
			np, f.NumGhostNodes(), len(exs[np].Pattern().RecvRanks()))
	}
	if bad != 0 {
		return fmt.Errorf("halo update left %d parts inconsistent", bad)
	}
	return
}
