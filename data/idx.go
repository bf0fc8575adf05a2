package data

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/AlexisAoun/brique/ml"
)

// IDX magic numbers, see http://yann.lecun.com/exdb/mnist/
const (
	idxLabelMagic = 0x00000801
	idxImageMagic = 0x00000803
)

// ErrIDXFormat reports a file whose header does not match its contents.
var ErrIDXFormat = errors.New("file incompatibility detected")

// ReadIDXLabels decodes an IDX1 label file into a 1×N matrix.
//
// IDX file format for labels:
//
//	magic number: 0x00000801 (2049)
//	number of labels: 4 bytes
//	label data: unsigned bytes
func ReadIDXLabels(r io.Reader) (*ml.Matrix, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read labels: %w", err)
	}
	if len(raw) < 8 {
		return nil, fmt.Errorf("%w: label header truncated (%d bytes)", ErrIDXFormat, len(raw))
	}
	if magic := binary.BigEndian.Uint32(raw[0:4]); magic != idxLabelMagic {
		return nil, fmt.Errorf("%w: invalid label magic number: got %d, want %d", ErrIDXFormat, magic, idxLabelMagic)
	}
	count := uint64(binary.BigEndian.Uint32(raw[4:8]))
	body := raw[8:]
	if count != uint64(len(body)) {
		return nil, fmt.Errorf("%w: header declares %d labels, file holds %d", ErrIDXFormat, count, len(body))
	}

	labels := ml.NewMatrix(1, len(body))
	for i, b := range body {
		labels.Set(0, i, float64(b))
	}
	return labels, nil
}

// ReadIDXImages decodes an IDX3 image file into an N×(rows·cols) matrix with
// one image per row and raw 0-255 pixel values.
//
// IDX file format for images:
//
//	magic number: 0x00000803 (2051)
//	number of images: 4 bytes
//	number of rows: 4 bytes
//	number of cols: 4 bytes
//	pixel data: unsigned bytes (0-255)
func ReadIDXImages(r io.Reader) (*ml.Matrix, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read images: %w", err)
	}
	if len(raw) < 16 {
		return nil, fmt.Errorf("%w: image header truncated (%d bytes)", ErrIDXFormat, len(raw))
	}
	if magic := binary.BigEndian.Uint32(raw[0:4]); magic != idxImageMagic {
		return nil, fmt.Errorf("%w: invalid image magic number: got %d, want %d", ErrIDXFormat, magic, idxImageMagic)
	}
	numImages := uint64(binary.BigEndian.Uint32(raw[4:8]))
	numRows := uint64(binary.BigEndian.Uint32(raw[8:12]))
	numCols := uint64(binary.BigEndian.Uint32(raw[12:16]))
	body := raw[16:]

	// Both factors are below 2^32, so the product fits.
	size := uint64(len(body))
	pixels := numRows * numCols
	if pixels == 0 || size%pixels != 0 || size/pixels != numImages {
		return nil, fmt.Errorf("%w: header declares %d images of %dx%d, file holds %d pixel bytes",
			ErrIDXFormat, numImages, numRows, numCols, len(body))
	}

	images := ml.NewMatrix(int(numImages), int(pixels))
	for i := 0; i < int(numImages); i++ {
		row := make([]float64, pixels)
		for j, b := range body[uint64(i)*pixels : uint64(i+1)*pixels] {
			row[j] = float64(b)
		}
		images.SetRow(i, row)
	}
	return images, nil
}

// LoadIDXLabels reads an IDX1 label file from disk.
func LoadIDXLabels(path string) (*ml.Matrix, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	labels, err := ReadIDXLabels(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return labels, nil
}

// LoadIDXImages reads an IDX3 image file from disk.
func LoadIDXImages(path string) (*ml.Matrix, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	images, err := ReadIDXImages(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return images, nil
}

// LoadIDX loads a matching image and label pair and normalises the images
// to [0,1] with Matrix.Normalize.
func LoadIDX(imagePath, labelPath string) (images, labels *ml.Matrix, err error) {
	images, err = LoadIDXImages(imagePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load images: %w", err)
	}
	labels, err = LoadIDXLabels(labelPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load labels: %w", err)
	}
	if images.Height() != labels.Width() {
		return nil, nil, fmt.Errorf("image count (%d) != label count (%d)", images.Height(), labels.Width())
	}
	images.Normalize()
	return images, labels, nil
}
