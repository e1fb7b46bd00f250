package fingerprint

import (
	"fmt"
	"image"
	"math/bits"
	"strconv"

	"github.com/disintegration/imaging"
)

const (
	gridCols = 9
	gridRows = 8
)

// Fingerprint is a 64-bit gradient hash of an image. Bit 63 is the first
// comparison of the top row, bit 0 the last comparison of the bottom row.
type Fingerprint uint64

func (f Fingerprint) String() string {
	return fmt.Sprintf("%016x", uint64(f))
}

func (f Fingerprint) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

func (f *Fingerprint) UnmarshalText(text []byte) error {
	v, err := strconv.ParseUint(string(text), 16, 64)
	if err != nil {
		return fmt.Errorf("invalid fingerprint %q: %w", text, err)
	}
	*f = Fingerprint(v)
	return nil
}

// Parse reads the 16-digit hex form produced by String.
func Parse(s string) (Fingerprint, error) {
	var f Fingerprint
	err := f.UnmarshalText([]byte(s))
	return f, err
}

// Compute shrinks img to a 9x8 grid and records, for every row, whether each
// cell is strictly brighter than its right neighbour. An image with no pixels
// has the zero fingerprint.
func Compute(img image.Image) Fingerprint {
	if img == nil || img.Bounds().Empty() {
		return 0
	}
	grid := imaging.Resize(img, gridCols, gridRows, imaging.Box)

	var fp Fingerprint
	bit := 63
	for y := 0; y < gridRows; y++ {
		row := grid.Pix[y*grid.Stride : y*grid.Stride+gridCols*4]
		for x := 0; x < gridCols-1; x++ {
			if luminance(row[x*4:]) > luminance(row[(x+1)*4:]) {
				fp |= 1 << uint(bit)
			}
			bit--
		}
	}
	return fp
}

func luminance(px []uint8) float64 {
	return 0.299*float64(px[0]) + 0.587*float64(px[1]) + 0.114*float64(px[2])
}

// Distance is the Hamming distance between two fingerprints.
func Distance(a, b Fingerprint) int {
	return bits.OnesCount64(uint64(a ^ b))
}

// Similarity expresses a distance as the share of agreeing bits.
func Similarity(distance int) float64 {
	return 1 - float64(distance)/64
}
