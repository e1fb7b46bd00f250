package camera

import (
	"bytes"
	"context"
	"image"
	"log"
	"sync"

	"github.com/blackjack/webcam"
	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

// V4L2 fourcc for Motion-JPEG.
const pixelFormatMJPEG webcam.PixelFormat = 0x47504A4D

const (
	frameWaitSeconds = 2
	maxFrameWaits    = 5
)

// Webcam reads MJPEG frames from a V4L2 device.
type Webcam struct {
	device        string
	width, height int

	mu  sync.Mutex
	cam *webcam.Webcam
}

func NewWebcam(device string, width, height int) *Webcam {
	if width <= 0 || height <= 0 {
		width, height = 640, 480
	}
	return &Webcam{device: device, width: width, height: height}
}

func (w *Webcam) Name() string { return w.device }

func (w *Webcam) Open(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cam != nil {
		return nil
	}

	cam, err := webcam.Open(w.device)
	if err != nil {
		return &UnavailableError{Source: w.device, Err: errors.Wrap(err, "Can not open device")}
	}

	if _, ok := cam.GetSupportedFormats()[pixelFormatMJPEG]; !ok {
		cam.Close()
		return &UnavailableError{Source: w.device, Err: errors.New("device does not support MJPEG")}
	}

	_, gotW, gotH, err := cam.SetImageFormat(pixelFormatMJPEG, uint32(w.width), uint32(w.height))
	if err != nil {
		cam.Close()
		return &UnavailableError{Source: w.device, Err: errors.Wrap(err, "Can not set image format")}
	}
	log.Printf("[CAMERA] %s streaming MJPEG %dx%d", w.device, gotW, gotH)

	if err := cam.StartStreaming(); err != nil {
		cam.Close()
		return &UnavailableError{Source: w.device, Err: errors.Wrap(err, "Can not start streaming")}
	}

	w.cam = cam
	return nil
}

func (w *Webcam) Frame(ctx context.Context) (image.Image, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cam == nil {
		return nil, &UnavailableError{Source: w.device, Err: errors.New("device not open")}
	}

	for i := 0; i < maxFrameWaits; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		err := w.cam.WaitForFrame(frameWaitSeconds)
		switch err.(type) {
		case nil:
		case *webcam.Timeout:
			continue
		default:
			return nil, &UnavailableError{Source: w.device, Err: errors.Wrap(err, "Failed when waiting for frame")}
		}

		frame, err := w.cam.ReadFrame()
		if err != nil {
			return nil, &UnavailableError{Source: w.device, Err: errors.Wrap(err, "Can not read frame")}
		}
		if len(frame) == 0 {
			continue
		}

		img, err := imaging.Decode(bytes.NewReader(frame))
		if err != nil {
			return nil, errors.Wrap(err, "Can not decode image")
		}
		return img, nil
	}

	return nil, errors.Errorf("no frame from %s after %d waits", w.device, maxFrameWaits)
}

func (w *Webcam) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cam == nil {
		return nil
	}
	cam := w.cam
	w.cam = nil
	if err := cam.StopStreaming(); err != nil {
		log.Printf("[CAMERA] %s: stop streaming: %v", w.device, err)
	}
	return cam.Close()
}
