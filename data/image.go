package data

import (
	"fmt"
	"image"
	_ "image/jpeg" // Essential: Registers JPEG format
	_ "image/png"
	"io"
	"os"

	"golang.org/x/image/draw"

	"github.com/AlexisAoun/brique/ml"
)

// DecodeGrayscale converts an image of any size to a targetW×targetH
// grayscale slice in row-major order, with values in the 0-255 range.
func DecodeGrayscale(r io.Reader, targetW, targetH int) ([]float64, error) {
	if targetW <= 0 || targetH <= 0 {
		return nil, fmt.Errorf("invalid target size %dx%d", targetW, targetH)
	}
	src, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	// Resize to 28x28 (or whatever the network expects)
	dst := image.NewRGBA(image.Rect(0, 0, targetW, targetH))
	draw.CatmullRom.Scale(dst, dst.Rect, src, src.Bounds(), draw.Over, nil)

	out := make([]float64, 0, targetW*targetH)
	bounds := dst.Bounds()

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := dst.At(x, y).RGBA()
			// Standard Grayscale formula
			gray := 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(b>>8)
			out = append(out, gray)
		}
	}
	return out, nil
}

// LoadImage reads a PNG or JPEG file and returns it as a 1×(w·h) row scaled
// to [0,1], ready for Model.Predict. invert flips dark-on-light drawings to
// the light-on-dark convention of MNIST.
func LoadImage(path string, w, h int, invert bool) (*ml.Matrix, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	pixels, err := DecodeGrayscale(f, w, h)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	// Normalize (0-255 -> 0.0-1.0)
	for i := range pixels {
		pixels[i] /= 255.0
		if invert {
			pixels[i] = 1 - pixels[i]
		}
	}
	return ml.NewMatrixFromSlice(1, len(pixels), pixels), nil
}
