package camera

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".bmp": true, ".webp": true,
}

// Files replays still images from a file or directory in name order, looping
// forever. It stands in for a camera on machines without one.
type Files struct {
	path string

	mu     sync.Mutex
	frames []image.Image
	next   int
}

func NewFiles(path string) *Files {
	return &Files{path: path}
}

// NewStatic serves the given frames in order. Used by tests and previews.
func NewStatic(frames ...image.Image) *Files {
	return &Files{path: "static", frames: frames}
}

func (f *Files) Name() string { return f.path }

func (f *Files) Open(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.next = 0
	if f.path == "static" {
		if len(f.frames) == 0 {
			return &UnavailableError{Source: f.path, Err: errors.New("no frames")}
		}
		return nil
	}

	paths, err := listImages(f.path)
	if err != nil {
		return &UnavailableError{Source: f.path, Err: err}
	}

	frames := make([]image.Image, 0, len(paths))
	for _, p := range paths {
		img, err := imaging.Open(p, imaging.AutoOrientation(true))
		if err != nil {
			return &UnavailableError{Source: f.path, Err: errors.Wrapf(err, "failed to load %s", p)}
		}
		frames = append(frames, img)
	}
	f.frames = frames
	return nil
}

func listImages(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrap(err, "image source not accessible")
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read image directory")
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !imageExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		paths = append(paths, filepath.Join(path, e.Name()))
	}
	if len(paths) == 0 {
		return nil, errors.Errorf("no images in %s", path)
	}
	sort.Strings(paths)
	return paths, nil
}

func (f *Files) Frame(ctx context.Context) (image.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.frames) == 0 {
		return nil, &UnavailableError{Source: f.path, Err: errors.New("source not open")}
	}
	img := f.frames[f.next%len(f.frames)]
	f.next++
	return img, nil
}

func (f *Files) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.path != "static" {
		f.frames = nil
	}
	return nil
}
