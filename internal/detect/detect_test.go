package detect

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
)

func TestAvailable(t *testing.T) {
	tests := []struct {
		name      string
		detector  Detector
		available bool
	}{
		{"nil", nil, false},
		{"null detector", Unavailable{}, false},
		{"null detector pointer", &Unavailable{Reason: "x"}, false},
		{"vision", NewVision("key"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Available(tt.detector)
			if tt.available && err != nil {
				t.Errorf("Expected available, got %v", err)
			}
			if !tt.available && !errors.Is(err, ErrUnavailable) {
				t.Errorf("Expected ErrUnavailable, got %v", err)
			}
		})
	}
}

func TestUnavailableDetect(t *testing.T) {
	_, err := Unavailable{Reason: "no model"}.Detect(context.Background(), image.NewGray(image.Rect(0, 0, 1, 1)))
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable, got %v", err)
	}
}

func TestNew_FallsBackToUnavailable(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"pigo without cascade", Config{Kind: KindPigo}},
		{"pigo with missing cascade", Config{Kind: KindPigo, CascadePath: filepath.Join(t.TempDir(), "facefinder")}},
		{"vision without key", Config{Kind: KindVision}},
		{"disabled", Config{Kind: KindNone}},
		{"unknown", Config{Kind: "dlib"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := Available(New(tt.cfg)); !errors.Is(err, ErrUnavailable) {
				t.Errorf("Expected ErrUnavailable, got %v", err)
			}
		})
	}
}

func TestCrop(t *testing.T) {
	frame := image.NewRGBA(image.Rect(0, 0, 100, 80))

	tests := []struct {
		name   string
		region image.Rectangle
		wantW  int
		wantH  int
		isNil  bool
	}{
		{"inside", image.Rect(10, 10, 50, 40), 40, 30, false},
		{"clamped", image.Rect(80, 60, 140, 120), 20, 20, false},
		{"outside", image.Rect(200, 200, 220, 220), 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			crop := Crop(frame, tt.region)
			if tt.isNil {
				if crop != nil {
					t.Errorf("Expected nil crop, got %v", crop.Bounds())
				}
				return
			}
			if crop.Bounds().Dx() != tt.wantW || crop.Bounds().Dy() != tt.wantH {
				t.Errorf("Expected %dx%d, got %v", tt.wantW, tt.wantH, crop.Bounds())
			}
		})
	}
}

func TestVisionDetect(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != "test-key" {
			t.Errorf("Expected api key in query, got %q", r.URL.RawQuery)
		}
		var req visionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		if len(req.Requests) != 1 || req.Requests[0].Features[0].Type != "FACE_DETECTION" {
			t.Errorf("Unexpected request %+v", req)
		}
		w.Write([]byte(`{"responses":[{"faceAnnotations":[
			{"boundingPoly":{"vertices":[{"x":10,"y":20},{"x":60,"y":20},{"x":60,"y":90},{"x":10,"y":90}]}},
			{"boundingPoly":{"vertices":[{"x":1,"y":1}]}}
		]}]}`))
	}))
	defer server.Close()

	v := NewVision("test-key")
	v.endpoint = server.URL

	regions, err := v.Detect(context.Background(), image.NewRGBA(image.Rect(0, 0, 100, 100)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(regions) != 1 || regions[0] != image.Rect(10, 20, 60, 90) {
		t.Errorf("Unexpected regions %v", regions)
	}
}

func TestVisionDetect_Forbidden(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":{"code":403,"message":"API key not valid"}}`))
	}))
	defer server.Close()

	v := NewVision("bad")
	v.endpoint = server.URL

	_, err := v.Detect(context.Background(), image.NewRGBA(image.Rect(0, 0, 8, 8)))
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable for rejected key, got %v", err)
	}
}
