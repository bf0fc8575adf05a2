package ml

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// initScale bounds the uniform distribution used by NewRandomMatrix.
const initScale = 0.01

// Matrix is a dense matrix backed by a flat slice.
//
// The transposed flag reinterprets the buffer without moving data: an
// untransposed matrix stores (r, c) at r*width+c, a transposed one at
// c*height+r. height and width are always the logical dimensions.
type Matrix struct {
	height, width int
	transposed    bool
	data          []float64
}

// -------- CONSTRUCTORS ------- //

// NewMatrix returns a zero-filled height×width matrix.
func NewMatrix(height, width int) *Matrix {
	if height < 0 || width < 0 {
		panic(fmt.Sprintf("ml: NewMatrix: negative dimension %dx%d", height, width))
	}
	return &Matrix{
		height: height,
		width:  width,
		data:   make([]float64, height*width),
	}
}

// NewMatrixFromSlice wraps data, which is read in row-major order.
// The slice is not copied.
func NewMatrixFromSlice(height, width int, data []float64) *Matrix {
	if height < 0 || width < 0 {
		panic(fmt.Sprintf("ml: NewMatrixFromSlice: negative dimension %dx%d", height, width))
	}
	if len(data) != height*width {
		panic(fmt.Sprintf("ml: NewMatrixFromSlice: slice length %d does not match %dx%d", len(data), height, width))
	}
	return &Matrix{
		height: height,
		width:  width,
		data:   data,
	}
}

// NewMatrixFromRows copies a slice of equally sized rows into a new matrix.
func NewMatrixFromRows(rows [][]float64) *Matrix {
	if len(rows) == 0 {
		return NewMatrix(0, 0)
	}
	m := NewMatrix(len(rows), len(rows[0]))
	for r, row := range rows {
		m.SetRow(r, row)
	}
	return m
}

// NewRandomMatrix returns a matrix filled uniformly in (-0.01, 0.01).
// A nil src draws from a time-seeded PCG source.
func NewRandomMatrix(height, width int, src rand.Source) *Matrix {
	if src == nil {
		src = rand.NewPCG(uint64(time.Now().UnixNano()), 0)
	}
	m := NewMatrix(height, width)
	dist := distuv.Uniform{Min: -initScale, Max: initScale, Src: src}
	for i := range m.data {
		m.data[i] = dist.Rand()
	}
	return m
}

// ------- ACCESSORS ------ //

func (m *Matrix) Height() int      { return m.height }
func (m *Matrix) Width() int       { return m.width }
func (m *Matrix) Transposed() bool { return m.transposed }

// Dims returns height and width, mirroring mat.Matrix.
func (m *Matrix) Dims() (int, int) { return m.height, m.width }

// strides returns the buffer step for one row and one column.
func (m *Matrix) strides() (row, col int) {
	if m.transposed {
		return 1, m.height
	}
	return m.width, 1
}

func (m *Matrix) index(op string, r, c int) int {
	if r < 0 || r >= m.height || c < 0 || c >= m.width {
		panic(fmt.Sprintf("ml: %s: index (%d,%d) out of range for %dx%d", op, r, c, m.height, m.width))
	}
	rs, cs := m.strides()
	return r*rs + c*cs
}

func (m *Matrix) Get(r, c int) float64 {
	return m.data[m.index("Get", r, c)]
}

func (m *Matrix) Set(r, c int, v float64) {
	m.data[m.index("Set", r, c)] = v
}

// Row returns a copy of row r.
func (m *Matrix) Row(r int) []float64 {
	out := make([]float64, m.width)
	for c := range out {
		out[c] = m.data[m.index("Row", r, c)]
	}
	return out
}

// SetRow overwrites row r with values.
func (m *Matrix) SetRow(r int, values []float64) {
	if len(values) != m.width {
		panic(fmt.Sprintf("ml: SetRow: got %d values for width %d", len(values), m.width))
	}
	for c, v := range values {
		m.data[m.index("SetRow", r, c)] = v
	}
}

// Rows gathers the given rows, in order, into a new contiguous matrix.
func (m *Matrix) Rows(indices []int) *Matrix {
	out := NewMatrix(len(indices), m.width)
	for i, idx := range indices {
		copy(out.data[i*m.width:(i+1)*m.width], m.Row(idx))
	}
	return out
}

// Clone returns a deep copy that keeps the transposed layout.
func (m *Matrix) Clone() *Matrix {
	data := make([]float64, len(m.data))
	copy(data, m.data)
	return &Matrix{
		height:     m.height,
		width:      m.width,
		transposed: m.transposed,
		data:       data,
	}
}

// Transpose returns the logical transpose of m as an independent matrix. The
// buffer is copied in its current order and only the orientation flag flips,
// so no elements are reordered.
func (m *Matrix) Transpose() *Matrix {
	t := m.transposeView()
	t.data = append([]float64(nil), m.data...)
	return t
}

// transposeView is Transpose without the copy: the result shares m's buffer.
func (m *Matrix) transposeView() *Matrix {
	return &Matrix{
		height:     m.width,
		width:      m.height,
		transposed: !m.transposed,
		data:       m.data,
	}
}

// TransposeInPlace flips the receiver's orientation.
func (m *Matrix) TransposeInPlace() {
	m.height, m.width = m.width, m.height
	m.transposed = !m.transposed
}

// View exposes m as a gonum matrix sharing the same storage.
// Like mat.NewDense, it panics on an empty matrix.
func (m *Matrix) View() mat.Matrix {
	if m.transposed {
		return mat.NewDense(m.width, m.height, m.data).T()
	}
	return mat.NewDense(m.height, m.width, m.data)
}

func (m *Matrix) String() string {
	if m.height == 0 || m.width == 0 {
		return fmt.Sprintf("[](%dx%d)", m.height, m.width)
	}
	return fmt.Sprintf("%v", mat.Formatted(m.View(), mat.Squeeze()))
}

// CSV renders one line per row with comma separated values.
func (m *Matrix) CSV() string {
	var sb strings.Builder
	for r := 0; r < m.height; r++ {
		for c := 0; c < m.width; c++ {
			if c > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(strconv.FormatFloat(m.Get(r, c), 'g', -1, 64))
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
