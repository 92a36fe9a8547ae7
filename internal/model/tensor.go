package model

import "fmt"

// Tensor is a dense row-major array of model outputs.
type Tensor struct {
	Shape []int
	Data  []float64
}

// NewTensor allocates a zeroed tensor.
func NewTensor(shape ...int) Tensor {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return Tensor{Shape: append([]int(nil), shape...), Data: make([]float64, n)}
}

// Rank returns the number of dimensions.
func (t Tensor) Rank() int { return len(t.Shape) }

// At returns the element at idx; the index count must equal the rank.
func (t Tensor) At(idx ...int) float64 {
	return t.Data[t.offset(idx)]
}

// Set assigns the element at idx.
func (t Tensor) Set(v float64, idx ...int) {
	t.Data[t.offset(idx)] = v
}

func (t Tensor) offset(idx []int) int {
	if len(idx) != len(t.Shape) {
		panic(fmt.Sprintf("tensor: %d indices for rank %d", len(idx), len(t.Shape)))
	}
	off := 0
	for i, v := range idx {
		if v < 0 || v >= t.Shape[i] {
			panic(fmt.Sprintf("tensor: index %d out of range for dim %d (size %d)", v, i, t.Shape[i]))
		}
		off = off*t.Shape[i] + v
	}
	return off
}

// Flatten returns a copy of the data in row-major order.
func (t Tensor) Flatten() []float64 {
	return append([]float64(nil), t.Data...)
}
