package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRanger(t *testing.T) {
	var (
		i1, i2 int
	)
	// Dimension parsing
	{
		i1, i2 = ParseDim(":", 10)
		assert.Equal(t, 0, i1)
		assert.Equal(t, 10, i2)
		i1, i2 = ParseDim(":5", 10)
		assert.Equal(t, 0, i1)
		assert.Equal(t, 5, i2)
		i1, i2 = ParseDim("5:5", 10)
		assert.Equal(t, 5, i1)
		assert.Equal(t, 6, i2)
		i1, i2 = ParseDim(4, 10)
		assert.Equal(t, 4, i1)
		assert.Equal(t, 5, i2)
		i1, i2 = ParseDim("2", 10)
		assert.Equal(t, 2, i1)
		assert.Equal(t, 3, i2)
		i1, i2 = ParseDim("end", 10)
		assert.Equal(t, 9, i1)
		assert.Equal(t, 10, i2)
	}
	// R1
	{
		assert.Equal(t, Index{0, 1, 2, 3}, NewR1(4).Range(":"))
		assert.Equal(t, Index{3}, NewR1(4).Range("end"))
	}
	// R2 row major indexing, 3 columns by 4 rows
	{
		my2d := NewR2(3, 4)
		assert.Equal(t, 12, my2d.Size())
		assert.Equal(t, Index{0}, my2d.Range(0, 0))
		// Column i=0 walks j
		assert.Equal(t, Index{0, 3, 6, 9}, my2d.Range(0, ":"))
		assert.Equal(t, Index{2, 5, 8, 11}, my2d.Range("end", ":"))
		// Row j=0 walks i
		assert.Equal(t, Index{0, 1, 2}, my2d.Range(":", 0))
		assert.Equal(t, Index{9, 10, 11}, my2d.Range(":", "end"))
		assert.Equal(t, 7, my2d.At(1, 2))
		i, j := my2d.IJ(7)
		assert.Equal(t, 1, i)
		assert.Equal(t, 2, j)
		for ind := 0; ind < my2d.Size(); ind++ {
			i, j = my2d.IJ(ind)
			assert.Equal(t, ind, my2d.At(i, j))
		}
	}
}
