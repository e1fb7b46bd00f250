package camera

import (
	"context"
	"fmt"
	"image"

	"github.com/pkg/errors"
)

const (
	KindWebcam = "webcam"
	KindStream = "stream"
	KindFile   = "file"
)

var ErrUnavailable = errors.New("camera unavailable")

// UnavailableError reports that a source could not be opened or has stopped
// delivering frames. It matches ErrUnavailable with errors.Is.
type UnavailableError struct {
	Source string
	Err    error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("camera unavailable (%s): %v", e.Source, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

func (e *UnavailableError) Is(target error) bool {
	return target == ErrUnavailable
}

// Source delivers still frames on demand. Frame is only called between a
// successful Open and Close, and never concurrently.
type Source interface {
	Open(ctx context.Context) error
	Frame(ctx context.Context) (image.Image, error)
	Close() error
	Name() string
}

type Config struct {
	Kind   string
	Device string
	URL    string
	Path   string
	Width  int
	Height int
}

func New(cfg Config) (Source, error) {
	switch cfg.Kind {
	case "", KindWebcam:
		device := cfg.Device
		if device == "" {
			device = "/dev/video0"
		}
		return NewWebcam(device, cfg.Width, cfg.Height), nil
	case KindStream:
		if cfg.URL == "" {
			return nil, errors.New("camera.url is required for stream sources")
		}
		return NewStream(cfg.URL), nil
	case KindFile:
		if cfg.Path == "" {
			return nil, errors.New("camera.path is required for file sources")
		}
		return NewFiles(cfg.Path), nil
	default:
		return nil, errors.Errorf("unsupported camera kind: %s", cfg.Kind)
	}
}
