package ml

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
)

// Binary checkpoint format. Integers are big-endian.
//
//	file   := "COOKIE" version:u8 length:u64 model
//	object := "CAT" tag:u8 body
//	matrix := object(0) transposed:u8 height:u64 width:u64 data:f64*height*width
//	layer  := object(1) relu:u8 matrix(weights_t) matrix(biases)
//	model  := object(2) lambda:u64 count:u64 layer*count
//
// length counts every byte of the file, header included. Matrix data is
// written in buffer order, so a transposed matrix round-trips as transposed.
const (
	fileMagic   = "COOKIE"
	objectMagic = "CAT"
	fileVersion = 1

	fileHeaderSize   = len(fileMagic) + 1 + 8
	objectPrefixSize = len(objectMagic) + 1
	matrixHeaderSize = objectPrefixSize + 1 + 8 + 8
)

type objectTag byte

const (
	tagMatrix objectTag = iota
	tagLayer
	tagModel
)

func (t objectTag) String() string {
	switch t {
	case tagMatrix:
		return "Matrix"
	case tagLayer:
		return "Layer"
	case tagModel:
		return "Model"
	}
	return fmt.Sprintf("tag(%d)", byte(t))
}

// -------- ENCODING -------- //

func appendPrefix(b []byte, tag objectTag) []byte {
	b = append(b, objectMagic...)
	return append(b, byte(tag))
}

func appendBool(b []byte, v bool) []byte {
	if v {
		return append(b, 1)
	}
	return append(b, 0)
}

func (m *Matrix) appendBinary(b []byte) []byte {
	b = appendPrefix(b, tagMatrix)
	b = appendBool(b, m.transposed)
	b = binary.BigEndian.AppendUint64(b, uint64(m.height))
	b = binary.BigEndian.AppendUint64(b, uint64(m.width))
	for _, v := range m.data {
		b = binary.BigEndian.AppendUint64(b, math.Float64bits(v))
	}
	return b
}

func (l *Layer) appendBinary(b []byte) []byte {
	b = appendPrefix(b, tagLayer)
	b = appendBool(b, l.Activation)
	b = l.WeightsT.appendBinary(b)
	return l.Biases.appendBinary(b)
}

func (m *Model) appendBinary(b []byte) []byte {
	b = appendPrefix(b, tagModel)
	b = binary.BigEndian.AppendUint64(b, math.Float64bits(m.Lambda))
	b = binary.BigEndian.AppendUint64(b, uint64(len(m.Layers)))
	for _, l := range m.Layers {
		b = l.appendBinary(b)
	}
	return b
}

func (m *Matrix) MarshalBinary() ([]byte, error) {
	return m.appendBinary(make([]byte, 0, matrixHeaderSize+8*len(m.data))), nil
}

func (l *Layer) MarshalBinary() ([]byte, error) {
	return l.appendBinary(nil), nil
}

// MarshalBinary encodes the model object without the file header.
func (m *Model) MarshalBinary() ([]byte, error) {
	return m.appendBinary(nil), nil
}

// EncodeFile returns the complete checkpoint file for m.
func EncodeFile(m *Model) []byte {
	b := make([]byte, fileHeaderSize, fileHeaderSize+1024)
	copy(b, fileMagic)
	b[len(fileMagic)] = fileVersion
	b = m.appendBinary(b)
	binary.BigEndian.PutUint64(b[len(fileMagic)+1:], uint64(len(b)))
	return b
}

// -------- DECODING -------- //

// decoder is a bounds-checked cursor. Every read checks the remaining length
// first, so malformed input yields ErrDecode instead of a panic.
type decoder struct {
	buf []byte
	off int
}

func (d *decoder) remaining() int { return len(d.buf) - d.off }

func (d *decoder) take(n int, what string) ([]byte, error) {
	if n < 0 || n > d.remaining() {
		return nil, decodeErrorf("unexpected end of input reading %s at offset %d", what, d.off)
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b, nil
}

func (d *decoder) readByte(what string) (byte, error) {
	b, err := d.take(1, what)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *decoder) readBool(what string) (bool, error) {
	v, err := d.readByte(what)
	if err != nil {
		return false, err
	}
	if v > 1 {
		return false, decodeErrorf("invalid %s flag %d at offset %d", what, v, d.off-1)
	}
	return v == 1, nil
}

func (d *decoder) readUint64(what string) (uint64, error) {
	b, err := d.take(8, what)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

func (d *decoder) prefix(want objectTag) error {
	start := d.off
	magic, err := d.take(len(objectMagic), want.String()+" magic")
	if err != nil {
		return err
	}
	if string(magic) != objectMagic {
		return decodeErrorf("start of object code not found at offset %d", start)
	}
	tag, err := d.readByte(want.String() + " tag")
	if err != nil {
		return err
	}
	if objectTag(tag) != want {
		return decodeErrorf("expected %s at offset %d, found %s", want, start, objectTag(tag))
	}
	return nil
}

func (d *decoder) matrix() (*Matrix, error) {
	if err := d.prefix(tagMatrix); err != nil {
		return nil, err
	}
	transposed, err := d.readBool("transposed")
	if err != nil {
		return nil, err
	}
	h, err := d.readUint64("height")
	if err != nil {
		return nil, err
	}
	w, err := d.readUint64("width")
	if err != nil {
		return nil, err
	}

	if h > math.MaxInt || w > math.MaxInt {
		return nil, decodeErrorf("matrix %dx%d exceeds the addressable size", h, w)
	}
	// h*w is bounded by what is left, so 8*h*w cannot overflow.
	avail := uint64(d.remaining() / 8)
	if h != 0 && w != 0 && (h > avail || w > avail/h) {
		return nil, decodeErrorf("matrix %dx%d does not fit in %d remaining bytes", h, w, d.remaining())
	}
	n := int(h * w)
	raw, err := d.take(8*n, "matrix data")
	if err != nil {
		return nil, err
	}

	data := make([]float64, n)
	for i := range data {
		data[i] = math.Float64frombits(binary.BigEndian.Uint64(raw[8*i:]))
	}
	return &Matrix{height: int(h), width: int(w), transposed: transposed, data: data}, nil
}

func (d *decoder) layer() (*Layer, error) {
	if err := d.prefix(tagLayer); err != nil {
		return nil, err
	}
	relu, err := d.readBool("activation")
	if err != nil {
		return nil, err
	}
	weights, err := d.matrix()
	if err != nil {
		return nil, err
	}
	biases, err := d.matrix()
	if err != nil {
		return nil, err
	}
	if biases.height != 1 || biases.width != weights.width {
		return nil, decodeErrorf("layer biases are %dx%d, want 1x%d", biases.height, biases.width, weights.width)
	}
	return &Layer{
		WeightsT:   weights,
		Biases:     biases,
		Activation: relu,
		Output:     NewMatrix(0, 0),
	}, nil
}

func (d *decoder) model() (*Model, error) {
	if err := d.prefix(tagModel); err != nil {
		return nil, err
	}
	bits, err := d.readUint64("lambda")
	if err != nil {
		return nil, err
	}
	count, err := d.readUint64("layer count")
	if err != nil {
		return nil, err
	}
	// The smallest possible layer holds two empty matrices.
	minLayer := uint64(objectPrefixSize + 1 + 2*matrixHeaderSize)
	if count == 0 || count > uint64(d.remaining())/minLayer {
		return nil, decodeErrorf("invalid layer count %d for %d remaining bytes", count, d.remaining())
	}

	layers := make([]*Layer, count)
	for i := range layers {
		if layers[i], err = d.layer(); err != nil {
			return nil, err
		}
		if i > 0 && layers[i].InputSize() != layers[i-1].Size() {
			return nil, decodeErrorf("layer %d expects %d inputs but layer %d produces %d",
				i, layers[i].InputSize(), i-1, layers[i-1].Size())
		}
	}
	return &Model{
		Layers:    layers,
		Lambda:    math.Float64frombits(bits),
		Optimizer: DefaultOptimizer,
	}, nil
}

func (d *decoder) finish() error {
	if d.remaining() != 0 {
		return decodeErrorf("%d trailing bytes after offset %d", d.remaining(), d.off)
	}
	return nil
}

func (m *Matrix) UnmarshalBinary(b []byte) error {
	d := &decoder{buf: b}
	out, err := d.matrix()
	if err != nil {
		return err
	}
	if err := d.finish(); err != nil {
		return err
	}
	*m = *out
	return nil
}

func (l *Layer) UnmarshalBinary(b []byte) error {
	d := &decoder{buf: b}
	out, err := d.layer()
	if err != nil {
		return err
	}
	if err := d.finish(); err != nil {
		return err
	}
	*l = *out
	return nil
}

// UnmarshalBinary decodes a model object. The optimizer is reset to
// DefaultOptimizer.
func (m *Model) UnmarshalBinary(b []byte) error {
	d := &decoder{buf: b}
	out, err := d.model()
	if err != nil {
		return err
	}
	if err := d.finish(); err != nil {
		return err
	}
	*m = *out
	return nil
}

// DecodeFile parses a complete checkpoint file.
func DecodeFile(b []byte) (*Model, error) {
	d := &decoder{buf: b}
	magic, err := d.take(len(fileMagic), "file magic")
	if err != nil {
		return nil, err
	}
	if string(magic) != fileMagic {
		return nil, decodeErrorf("not a model file: bad magic %q", magic)
	}
	version, err := d.readByte("version")
	if err != nil {
		return nil, err
	}
	if version != fileVersion {
		return nil, decodeErrorf("unsupported file version %d", version)
	}
	length, err := d.readUint64("file length")
	if err != nil {
		return nil, err
	}
	if length != uint64(len(b)) {
		return nil, decodeErrorf("header declares %d bytes, file has %d", length, len(b))
	}

	m, err := d.model()
	if err != nil {
		return nil, err
	}
	if err := d.finish(); err != nil {
		return nil, err
	}
	return m, nil
}

// -------- FILES -------- //

// SaveModel writes m to path, replacing any existing file.
func SaveModel(m *Model, path string) error {
	if err := os.WriteFile(path, EncodeFile(m), 0o644); err != nil {
		return &PersistError{Kind: ErrSave, Detail: path, Err: err}
	}
	return nil
}

// LoadModel reads a checkpoint written by SaveModel. The returned model uses
// DefaultOptimizer.
func LoadModel(path string) (*Model, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, &PersistError{Kind: ErrRead, Detail: path, Err: err}
	}
	m, err := DecodeFile(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}
