package ml

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/floats/scalar"
)

func shapeMismatch(op string, a, b *Matrix) string {
	return fmt.Sprintf("ml: %s: dimension mismatch (%dx%d vs %dx%d)", op, a.height, a.width, b.height, b.width)
}

func (m *Matrix) mustSameShape(op string, b *Matrix) {
	if m.height != b.height || m.width != b.width {
		panic(shapeMismatch(op, m, b))
	}
}

// aligned returns b's values laid out like m's buffer so the two can be
// combined with flat slice operations.
func (m *Matrix) aligned(op string, b *Matrix) []float64 {
	m.mustSameShape(op, b)
	if m.transposed == b.transposed {
		return b.data
	}
	out := make([]float64, len(m.data))
	rs, cs := m.strides()
	for r := 0; r < m.height; r++ {
		for c := 0; c < m.width; c++ {
			out[r*rs+c*cs] = b.Get(r, c)
		}
	}
	return out
}

// Dot returns the matrix product m·b.
// Each output element accumulates in increasing k order.
func (m *Matrix) Dot(b *Matrix) *Matrix {
	if m.width != b.height {
		panic(fmt.Sprintf("ml: Dot: dimension mismatch (%dx%d · %dx%d)", m.height, m.width, b.height, b.width))
	}
	out := NewMatrix(m.height, b.width)
	ars, acs := m.strides()
	brs, bcs := b.strides()
	for i := 0; i < m.height; i++ {
		rowA := i * ars
		rowOut := i * b.width
		for j := 0; j < b.width; j++ {
			colB := j * bcs
			var sum float64
			for k := 0; k < m.width; k++ {
				sum += m.data[rowA+k*acs] * b.data[k*brs+colB]
			}
			out.data[rowOut+j] = sum
		}
	}
	return out
}

// AddRowToAllRows adds the 1×width row b to every row of m.
func (m *Matrix) AddRowToAllRows(b *Matrix) *Matrix {
	if b.height != 1 || b.width != m.width {
		panic(fmt.Sprintf("ml: AddRowToAllRows: want 1x%d row, got %dx%d", m.width, b.height, b.width))
	}
	out := m.Clone()
	rs, cs := out.strides()
	for r := 0; r < m.height; r++ {
		for c := 0; c < m.width; c++ {
			out.data[r*rs+c*cs] += b.Get(0, c)
		}
	}
	return out
}

// Add returns m+b.
func (m *Matrix) Add(b *Matrix) *Matrix {
	out := m.Clone()
	floats.Add(out.data, m.aligned("Add", b))
	return out
}

// MulElem returns the elementwise product of m and b.
func (m *Matrix) MulElem(b *Matrix) *Matrix {
	out := m.Clone()
	floats.Mul(out.data, m.aligned("MulElem", b))
	return out
}

// Mult returns m scaled by s.
func (m *Matrix) Mult(s float64) *Matrix {
	out := m.Clone()
	floats.Scale(s, out.data)
	return out
}

// Div returns m divided by s. It panics when s is zero.
func (m *Matrix) Div(s float64) *Matrix {
	if s == 0 {
		panic(fmt.Sprintf("ml: Div: division by zero on %dx%d matrix", m.height, m.width))
	}
	out := m.Clone()
	for i := range out.data {
		out.data[i] /= s
	}
	return out
}

// Pow raises every element to the integer power n.
func (m *Matrix) Pow(n int) *Matrix {
	return m.apply(func(v float64) float64 { return math.Pow(v, float64(n)) })
}

// Exp returns e raised to every element.
func (m *Matrix) Exp() *Matrix {
	return m.apply(math.Exp)
}

func (m *Matrix) apply(fn func(float64) float64) *Matrix {
	out := m.Clone()
	for i, v := range out.data {
		out.data[i] = fn(v)
	}
	return out
}

// Sum adds every element, in buffer order.
func (m *Matrix) Sum() float64 {
	var s float64
	for _, v := range m.data {
		s += v
	}
	return s
}

// SumRows returns the 1×width row of column sums.
func (m *Matrix) SumRows() *Matrix {
	out := NewMatrix(1, m.width)
	for c := 0; c < m.width; c++ {
		var s float64
		for r := 0; r < m.height; r++ {
			s += m.Get(r, c)
		}
		out.data[c] = s
	}
	return out
}

func (m *Matrix) Max() float64 {
	if len(m.data) == 0 {
		panic("ml: Max: empty matrix")
	}
	return floats.Max(m.data)
}

func (m *Matrix) Min() float64 {
	if len(m.data) == 0 {
		panic("ml: Min: empty matrix")
	}
	return floats.Min(m.data)
}

// Normalize rescales m in place to [0,1] with (x-min)/(max-min).
// A constant matrix becomes all zeros.
func (m *Matrix) Normalize() {
	if len(m.data) == 0 {
		return
	}
	lo, hi := m.Min(), m.Max()
	span := hi - lo
	for i, v := range m.data {
		if span == 0 {
			m.data[i] = 0
			continue
		}
		m.data[i] = (v - lo) / span
	}
}

// IsEqual reports whether m and b have the same shape and every pair of
// elements is equal once both are rounded to precision decimal digits.
func (m *Matrix) IsEqual(b *Matrix, precision int) bool {
	if m.height != b.height || m.width != b.width {
		return false
	}
	for r := 0; r < m.height; r++ {
		for c := 0; c < m.width; c++ {
			if scalar.Round(m.Get(r, c), precision) != scalar.Round(b.Get(r, c), precision) {
				return false
			}
		}
	}
	return true
}

// ComputeDReluMask returns grad with every entry zeroed where the matching
// entry of preActivation is not positive.
func ComputeDReluMask(grad, preActivation *Matrix) *Matrix {
	grad.mustSameShape("ComputeDReluMask", preActivation)
	out := grad.Clone()
	for r := 0; r < grad.height; r++ {
		for c := 0; c < grad.width; c++ {
			if preActivation.Get(r, c) <= 0 {
				out.Set(r, c, 0)
			}
		}
	}
	return out
}
