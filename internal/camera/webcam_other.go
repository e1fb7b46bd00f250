//go:build !linux

package camera

import (
	"context"
	"image"

	"github.com/pkg/errors"
)

// Webcam needs V4L2; on other platforms it always reports unavailable.
type Webcam struct {
	device string
}

func NewWebcam(device string, width, height int) *Webcam {
	return &Webcam{device: device}
}

func (w *Webcam) Name() string { return w.device }

func (w *Webcam) Open(ctx context.Context) error {
	return &UnavailableError{Source: w.device, Err: errors.New("V4L2 webcams are only supported on linux")}
}

func (w *Webcam) Frame(ctx context.Context) (image.Image, error) {
	return nil, &UnavailableError{Source: w.device, Err: errors.New("device not open")}
}

func (w *Webcam) Close() error { return nil }
