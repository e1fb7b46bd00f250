package detect

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"net/http"
	"time"

	"github.com/disintegration/imaging"
)

const visionAPIURL = "https://vision.googleapis.com/v1/images:annotate"

// Vision asks the Cloud Vision API for FACE_DETECTION annotations.
type Vision struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
}

func NewVision(apiKey string) *Vision {
	return &Vision{
		apiKey:   apiKey,
		endpoint: visionAPIURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type visionRequest struct {
	Requests []annotateRequest `json:"requests"`
}

type annotateRequest struct {
	Image    imageContent `json:"image"`
	Features []feature    `json:"features"`
}

type imageContent struct {
	Content string `json:"content"`
}

type feature struct {
	Type       string `json:"type"`
	MaxResults int    `json:"maxResults,omitempty"`
}

type visionResponse struct {
	Responses []annotateResponse `json:"responses"`
	Error     *visionError       `json:"error"`
}

type visionError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type annotateResponse struct {
	FaceAnnotations []faceAnnotation `json:"faceAnnotations"`
	Error           *visionError     `json:"error"`
}

type faceAnnotation struct {
	BoundingPoly        boundingPoly `json:"boundingPoly"`
	DetectionConfidence float64      `json:"detectionConfidence"`
}

type boundingPoly struct {
	Vertices []vertex `json:"vertices"`
}

type vertex struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (v *Vision) Detect(ctx context.Context, img image.Image) ([]image.Rectangle, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}

	reqBody := visionRequest{
		Requests: []annotateRequest{
			{
				Image:    imageContent{Content: base64.StdEncoding.EncodeToString(buf.Bytes())},
				Features: []feature{{Type: "FACE_DETECTION", MaxResults: 20}},
			},
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s?key=%s", v.endpoint, v.apiKey)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var visionResp visionResponse
	if err := json.Unmarshal(body, &visionResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if visionResp.Error != nil {
		if visionResp.Error.Code == http.StatusForbidden || visionResp.Error.Code == http.StatusUnauthorized {
			return nil, fmt.Errorf("%w: %s", ErrUnavailable, visionResp.Error.Message)
		}
		return nil, fmt.Errorf("Google Vision API error: %s", visionResp.Error.Message)
	}
	if len(visionResp.Responses) == 0 {
		return nil, fmt.Errorf("no response from Google Vision API")
	}

	response := visionResp.Responses[0]
	if response.Error != nil {
		return nil, fmt.Errorf("Google Vision API error: %s", response.Error.Message)
	}

	origin := img.Bounds().Min
	regions := make([]image.Rectangle, 0, len(response.FaceAnnotations))
	for _, face := range response.FaceAnnotations {
		if len(face.BoundingPoly.Vertices) < 4 {
			continue
		}
		minX, minY := face.BoundingPoly.Vertices[0].X, face.BoundingPoly.Vertices[0].Y
		maxX, maxY := minX, minY
		for _, vx := range face.BoundingPoly.Vertices {
			minX, maxX = min(minX, vx.X), max(maxX, vx.X)
			minY, maxY = min(minY, vx.Y), max(maxY, vx.Y)
		}
		regions = append(regions, image.Rect(minX, minY, maxX, maxY).Add(origin))
	}
	return regions, nil
}
