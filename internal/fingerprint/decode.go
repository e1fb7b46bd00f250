package fingerprint

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// ImageDecodeError reports an image that could not be read. Batch callers
// skip the affected record and keep going.
type ImageDecodeError struct {
	Source string
	Err    error
}

func (e *ImageDecodeError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("failed to decode image: %v", e.Err)
	}
	return fmt.Sprintf("failed to decode image %s: %v", e.Source, e.Err)
}

func (e *ImageDecodeError) Unwrap() error {
	return e.Err
}

// Decode accepts raw encoded bytes or a base64 data URL
// ("data:image/jpeg;base64,...") as stored by the enrollment form.
func Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, &ImageDecodeError{Err: fmt.Errorf("empty image")}
	}

	raw := data
	if bytes.HasPrefix(data, []byte("data:")) {
		var err error
		raw, err = decodeDataURL(string(data))
		if err != nil {
			return nil, &ImageDecodeError{Source: "data URL", Err: err}
		}
	}

	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return nil, &ImageDecodeError{Err: err}
	}

	b := img.Bounds()
	if b.Dx() < 1 || b.Dy() < 1 {
		return nil, &ImageDecodeError{Err: fmt.Errorf("empty bounds %v", b)}
	}
	return img, nil
}

func decodeDataURL(s string) ([]byte, error) {
	comma := strings.IndexByte(s, ',')
	if comma < 0 {
		return nil, fmt.Errorf("missing data separator")
	}
	meta := s[len("data:"):comma]
	if !strings.HasSuffix(meta, ";base64") {
		return nil, fmt.Errorf("unsupported data URL encoding %q", meta)
	}
	return base64.StdEncoding.DecodeString(s[comma+1:])
}
