package camera

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func writePNG(t *testing.T, path string, w int) {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, 10))
	for x := 0; x < w; x++ {
		img.SetGray(x, 0, color.Gray{Y: uint8(x)})
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("failed to encode %s: %v", path, err)
	}
}

func TestFiles_LoopsInNameOrder(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "b.png"), 20)
	writePNG(t, filepath.Join(dir, "a.png"), 10)
	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip"), 0644)

	src := NewFiles(dir)
	ctx := context.Background()
	if err := src.Open(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer src.Close()

	for i, want := range []int{10, 20, 10} {
		img, err := src.Frame(ctx)
		if err != nil {
			t.Fatalf("frame %d: unexpected error: %v", i, err)
		}
		if got := img.Bounds().Dx(); got != want {
			t.Errorf("frame %d: expected width %d, got %d", i, want, got)
		}
	}
}

func TestFiles_Unavailable(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{"missing path", filepath.Join(t.TempDir(), "missing")},
		{"empty directory", t.TempDir()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewFiles(tt.path).Open(context.Background())
			if !errors.Is(err, ErrUnavailable) {
				t.Errorf("Expected ErrUnavailable, got %v", err)
			}
		})
	}
}

func TestFrameBeforeOpen(t *testing.T) {
	_, err := NewFiles(t.TempDir()).Frame(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable, got %v", err)
	}
}

func TestStatic(t *testing.T) {
	frame := image.NewGray(image.Rect(0, 0, 4, 4))
	src := NewStatic(frame)
	if err := src.Open(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	src.Close()
	if err := src.Open(context.Background()); err != nil {
		t.Fatalf("static source should reopen: %v", err)
	}
	if err := NewStatic().Open(context.Background()); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable for empty static source, got %v", err)
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"default webcam", Config{}, false},
		{"stream", Config{Kind: KindStream, URL: "rtsp://cam/1"}, false},
		{"stream without url", Config{Kind: KindStream}, true},
		{"file", Config{Kind: KindFile, Path: "/tmp/x"}, false},
		{"unknown", Config{Kind: "ipcam"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("Expected error=%v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestUnavailableError(t *testing.T) {
	inner := errors.New("permission denied")
	err := error(&UnavailableError{Source: "/dev/video0", Err: inner})
	if !errors.Is(err, ErrUnavailable) || !errors.Is(err, inner) {
		t.Errorf("Expected error to match both ErrUnavailable and its cause")
	}
}
