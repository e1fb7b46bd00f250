package fingerprint

import (
	"fmt"
	"image"

	"github.com/corona10/goimagehash"
)

// Hasher turns a face crop into a Fingerprint. Both implementations are
// stand-ins for a real recognition model and share the Hamming distance.
type Hasher interface {
	Hash(img image.Image) (Fingerprint, error)
	Name() string
}

const (
	HashGradient   = "gradient"
	HashPerceptual = "perceptual"
)

func NewHasher(name string) (Hasher, error) {
	switch name {
	case "", HashGradient:
		return Gradient{}, nil
	case HashPerceptual:
		return Perceptual{}, nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm: %s", name)
	}
}

func usable(img image.Image) error {
	if img == nil {
		return &ImageDecodeError{Err: fmt.Errorf("nil image")}
	}
	if img.Bounds().Empty() {
		return &ImageDecodeError{Err: fmt.Errorf("empty image %v", img.Bounds())}
	}
	return nil
}

// Gradient is the default 9x8 horizontal-gradient hash.
type Gradient struct{}

func (Gradient) Hash(img image.Image) (Fingerprint, error) {
	if err := usable(img); err != nil {
		return 0, err
	}
	return Compute(img), nil
}

func (Gradient) Name() string { return HashGradient }

// Perceptual uses the DCT-based pHash from goimagehash.
type Perceptual struct{}

func (Perceptual) Hash(img image.Image) (Fingerprint, error) {
	if err := usable(img); err != nil {
		return 0, err
	}
	h, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return 0, fmt.Errorf("perception hash: %w", err)
	}
	return Fingerprint(h.GetHash()), nil
}

func (Perceptual) Name() string { return HashPerceptual }
