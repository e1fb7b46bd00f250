package detect

import (
	"context"
	"fmt"
	"image"
	"os"
	"sort"

	"github.com/disintegration/imaging"
	pigo "github.com/esimov/pigo/core"
)

// Pigo runs a pixel-intensity cascade classifier locally.
type Pigo struct {
	classifier *pigo.Pigo

	MinSize      int
	MaxSize      int
	ShiftFactor  float64
	ScaleFactor  float64
	IoUThreshold float64
	MinQuality   float32
}

func NewPigo(cascadePath string) (*Pigo, error) {
	if cascadePath == "" {
		return nil, fmt.Errorf("cascade file not configured")
	}
	cascadeData, err := os.ReadFile(cascadePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read cascade file: %w", err)
	}
	return NewPigoFromCascade(cascadeData)
}

func NewPigoFromCascade(cascadeData []byte) (*Pigo, error) {
	p := pigo.NewPigo()
	classifier, err := p.Unpack(cascadeData)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack cascade: %w", err)
	}

	return &Pigo{
		classifier:   classifier,
		MinSize:      60,
		MaxSize:      1000,
		ShiftFactor:  0.1,
		ScaleFactor:  1.1,
		IoUThreshold: 0.2,
		MinQuality:   5.0,
	}, nil
}

func (d *Pigo) Detect(ctx context.Context, img image.Image) ([]image.Rectangle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	src := pigo.ImgToNRGBA(imaging.Clone(img))
	pixels := pigo.RgbToGrayscale(src)
	cols, rows := src.Bounds().Dx(), src.Bounds().Dy()

	cParams := pigo.CascadeParams{
		MinSize:     d.MinSize,
		MaxSize:     d.MaxSize,
		ShiftFactor: d.ShiftFactor,
		ScaleFactor: d.ScaleFactor,
		ImageParams: pigo.ImageParams{
			Pixels: pixels,
			Rows:   rows,
			Cols:   cols,
			Dim:    cols,
		},
	}

	dets := d.classifier.RunCascade(cParams, 0.0)
	dets = d.classifier.ClusterDetections(dets, d.IoUThreshold)

	// Strongest detections first.
	sort.SliceStable(dets, func(i, j int) bool { return dets[i].Q > dets[j].Q })

	origin := img.Bounds().Min
	regions := make([]image.Rectangle, 0, len(dets))
	for _, det := range dets {
		if det.Q < d.MinQuality {
			continue
		}
		half := det.Scale / 2
		r := image.Rect(det.Col-half, det.Row-half, det.Col+half, det.Row+half).Add(origin)
		regions = append(regions, r.Intersect(img.Bounds()))
	}
	return regions, nil
}
