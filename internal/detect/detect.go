package detect

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"

	"github.com/disintegration/imaging"
)

const (
	KindPigo   = "pigo"
	KindVision = "vision"
	KindNone   = "none"
)

var ErrUnavailable = errors.New("face detection unavailable")

// Detector finds face regions in a frame. Regions come back in the order the
// detector reports them, in the frame's coordinate space.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]image.Rectangle, error)
}

// Unavailable is the null detector. Every call fails with ErrUnavailable.
type Unavailable struct {
	Reason string
}

func (u Unavailable) Detect(ctx context.Context, img image.Image) ([]image.Rectangle, error) {
	return nil, u.Err()
}

func (u Unavailable) Err() error {
	if u.Reason == "" {
		return ErrUnavailable
	}
	return fmt.Errorf("%w: %s", ErrUnavailable, u.Reason)
}

// Available returns nil when d can be used for detection.
func Available(d Detector) error {
	switch v := d.(type) {
	case nil:
		return ErrUnavailable
	case Unavailable:
		return v.Err()
	case *Unavailable:
		return v.Err()
	}
	return nil
}

type Config struct {
	Kind        string
	CascadePath string
	MinSize     int
	MaxSize     int
	MinQuality  float64
	APIKey      string
}

// New builds the configured detector. A detector that cannot be loaded is
// replaced by Unavailable so the rest of the system runs in streaming-only
// mode.
func New(cfg Config) Detector {
	switch cfg.Kind {
	case "", KindPigo:
		d, err := NewPigo(cfg.CascadePath)
		if err != nil {
			log.Printf("[DETECT] Pigo detector not loaded: %v", err)
			return Unavailable{Reason: err.Error()}
		}
		if cfg.MinSize > 0 {
			d.MinSize = cfg.MinSize
		}
		if cfg.MaxSize > 0 {
			d.MaxSize = cfg.MaxSize
		}
		if cfg.MinQuality > 0 {
			d.MinQuality = float32(cfg.MinQuality)
		}
		return d
	case KindVision:
		if cfg.APIKey == "" {
			log.Printf("[DETECT] Vision detector not configured: missing API key")
			return Unavailable{Reason: "vision API key not configured"}
		}
		return NewVision(cfg.APIKey)
	case KindNone:
		return Unavailable{Reason: "detection disabled"}
	default:
		log.Printf("[DETECT] Unknown detector kind %q", cfg.Kind)
		return Unavailable{Reason: "unknown detector " + cfg.Kind}
	}
}

// Crop cuts region out of img, clamped to the frame. It returns nil when the
// clamped region is empty.
func Crop(img image.Image, region image.Rectangle) image.Image {
	r := region.Intersect(img.Bounds())
	if r.Empty() {
		return nil
	}
	return imaging.Crop(img, r)
}
