package utils

import (
	"strconv"
	"strings"
)

type Index []int

func NewIndex(N int) (I Index) {
	return make(Index, N)
}

func NewRange(rmin, rmax int) (r Index) {
	var (
		size = rmax - rmin + 1 // INCLUSIVE RANGE
	)
	if size < 0 {
		size = 0
	}
	r = make(Index, size)
	for i := range r {
		r[i] = i + rmin
	}
	return
}

type R1 struct {
	Max int
}

func NewR1(imax int) R1 {
	return R1{imax}
}

func (r R1) Range(dimI interface{}) Index {
	var (
		i1, i2 = ParseDim(dimI, r.Max)
	)
	return NewRange(i1, i2-1)
}

// R2 addresses a structured ni x nj lattice stored row major, i fastest:
// the linear index of (i,j) is i + ni*j.
type R2 struct {
	Ir, Jr R1
}

func NewR2(imax, jmax int) R2 {
	return R2{
		NewR1(imax),
		NewR1(jmax),
	}
}

func (r R2) Size() int { return r.Ir.Max * r.Jr.Max }

func (r R2) At(i, j int) int { return i + r.Ir.Max*j }

// IJ inverts At.
func (r R2) IJ(ind int) (i, j int) {
	j = ind / r.Ir.Max
	i = ind - j*r.Ir.Max
	return
}

// Range lists linear indices over the selected columns and rows, i fastest.
func (r R2) Range(dimI, dimJ interface{}) (I Index) {
	var (
		is, js = r.Ir.Range(dimI), r.Jr.Range(dimJ)
	)
	I = make(Index, 0, len(is)*len(js))
	for _, j := range js {
		for _, i := range is {
			I = append(I, r.At(i, j))
		}
	}
	return
}

func ParseDim(dimI interface{}, max int) (i1, i2 int) {
	/*
		Converts phrases including:
			":"   = full range, from 0 to max (loop indexing)
			"end" = last index, from max-1, max
			"N"   = middle index, from N-1, N
		   	N     = middle index, from N-1, N
		    "2:N" = range, from 2 to N (loop indexing)
		   	":N"  = range, from 0 to N (loop indexing)
		   	"N:"  = range, from N to max-1 (loop indexing)
	*/
	switch dim := dimI.(type) {
	case string:
		switch dim {
		case "end":
			i1, i2 = max-1, max
		case ":":
			i1, i2 = 0, max
		default:
			i1, i2 = parseRange(dim, max)
		}
	case int:
		i1, i2 = dim, dim+1
	}
	return
}

func parseRange(dim string, max int) (i1, i2 int) {
	var (
		splits = strings.Split(dim, ":")
		err    error
	)
	if i1, err = strconv.Atoi(splits[0]); err != nil {
		i1 = 0
	}
	if len(splits) == 1 {
		i2 = i1 + 1
		return
	}
	if i2, err = strconv.Atoi(splits[1]); err != nil {
		i2 = max
	}
	if i2 == i1 {
		i2 = i1 + 1
	}
	return
}
