package storage

import (
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
)

type LocalStorage struct {
	basePath string
}

func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &LocalStorage{basePath: basePath}, nil
}

func safeName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, s)
}

// SaveSnapshot writes img as JPEG and returns its path relative to the
// storage root: <date>/<school>_<student>_<uuid>.jpg.
func (ls *LocalStorage) SaveSnapshot(img image.Image, info SnapshotInfo) (string, error) {
	dir := safeName(info.Date)
	if dir == "" {
		dir = "undated"
	}
	if err := os.MkdirAll(filepath.Join(ls.basePath, dir), 0755); err != nil {
		return "", fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	filename := fmt.Sprintf("%s_%s_%s.jpg", safeName(info.SchoolID), safeName(info.StudentID), uuid.New().String())
	rel := filepath.Join(dir, filename)
	fullPath := filepath.Join(ls.basePath, rel)

	dst, err := os.Create(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer dst.Close()

	if err := imaging.Encode(dst, img, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		os.Remove(fullPath)
		return "", fmt.Errorf("failed to save file: %w", err)
	}

	return filepath.ToSlash(rel), nil
}

func (ls *LocalStorage) resolve(path string) (string, error) {
	cleanPath := filepath.Clean(filepath.FromSlash(path))
	if strings.Contains(cleanPath, "..") || filepath.IsAbs(cleanPath) {
		return "", fmt.Errorf("invalid path")
	}
	return filepath.Join(ls.basePath, cleanPath), nil
}

func (ls *LocalStorage) OpenFile(path string) (io.ReadSeekCloser, error) {
	fullPath, err := ls.resolve(path)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	return file, nil
}

func (ls *LocalStorage) DeleteFile(path string) error {
	fullPath, err := ls.resolve(path)
	if err != nil {
		return err
	}

	if err := os.Remove(fullPath); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}

	return nil
}

// Prune removes snapshots last written before the cutoff and any day
// directories left empty.
func (ls *LocalStorage) Prune(before time.Time) (int, error) {
	removed := 0
	err := filepath.WalkDir(ls.basePath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.ModTime().Before(before) {
			if err := os.Remove(path); err != nil {
				return fmt.Errorf("failed to delete file: %w", err)
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return removed, err
	}

	entries, err := os.ReadDir(ls.basePath)
	if err != nil {
		return removed, fmt.Errorf("failed to read storage directory: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(ls.basePath, e.Name())
		if rest, err := os.ReadDir(dir); err == nil && len(rest) == 0 {
			os.Remove(dir)
		}
	}
	return removed, nil
}
