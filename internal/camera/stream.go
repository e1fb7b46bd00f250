package camera

import (
	"bytes"
	"context"
	"image"
	"log"
	"os/exec"
	"time"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

const grabTimeout = 15 * time.Second

// Stream grabs single frames from a network camera (RTSP, HTTP MJPEG, HLS)
// by running ffmpeg once per frame.
type Stream struct {
	url        string
	ffmpegPath string
}

func NewStream(url string) *Stream {
	return &Stream{url: url}
}

func (s *Stream) Name() string { return s.url }

func (s *Stream) Open(ctx context.Context) error {
	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		return &UnavailableError{Source: s.url, Err: errors.Wrap(err, "ffmpeg not found in PATH")}
	}
	s.ffmpegPath = ffmpegPath
	log.Printf("[CAMERA] Found ffmpeg at: %s", ffmpegPath)

	if _, err := s.grab(ctx); err != nil {
		return &UnavailableError{Source: s.url, Err: err}
	}
	return nil
}

func (s *Stream) Frame(ctx context.Context) (image.Image, error) {
	if s.ffmpegPath == "" {
		return nil, &UnavailableError{Source: s.url, Err: errors.New("stream not open")}
	}
	return s.grab(ctx)
}

func (s *Stream) grab(ctx context.Context) (image.Image, error) {
	ctx, cancel := context.WithTimeout(ctx, grabTimeout)
	defer cancel()

	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-i", s.url,
		"-frames:v", "1",
		"-q:v", "2",
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-",
	}
	cmd := exec.CommandContext(ctx, s.ffmpegPath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		log.Printf("[CAMERA] FFmpeg stderr output: %s", stderr.String())
		return nil, errors.Wrapf(err, "failed to grab frame from %s", s.url)
	}

	img, err := imaging.Decode(&stdout)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode frame")
	}
	return img, nil
}

func (s *Stream) Close() error {
	s.ffmpegPath = ""
	return nil
}
