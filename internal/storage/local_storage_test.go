package storage

import (
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/disintegration/imaging"
)

func TestLocalStorage(t *testing.T) {
	tmpDir := t.TempDir()
	storage, err := NewLocalStorage(tmpDir)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}

	face := image.NewRGBA(image.Rect(0, 0, 32, 32))

	t.Run("SaveSnapshot", func(t *testing.T) {
		info := SnapshotInfo{SchoolID: "SCH1", StudentID: "S/007", Date: "2024-01-10"}

		rel, err := storage.SaveSnapshot(face, info)
		if err != nil {
			t.Fatalf("Failed to save snapshot: %v", err)
		}

		if filepath.Ext(rel) != ".jpg" {
			t.Errorf("Expected .jpg extension, got %s", filepath.Ext(rel))
		}
		if !strings.HasPrefix(rel, "2024-01-10/SCH1_S_007_") {
			t.Errorf("Unexpected snapshot path %s", rel)
		}

		img, err := imaging.Open(filepath.Join(tmpDir, filepath.FromSlash(rel)))
		if err != nil {
			t.Fatalf("Snapshot is not a readable image: %v", err)
		}
		if img.Bounds().Dx() != 32 {
			t.Errorf("Expected 32px wide snapshot, got %d", img.Bounds().Dx())
		}
	})

	t.Run("OpenFile", func(t *testing.T) {
		content := []byte("jpeg bytes")
		testFile := "test-file.jpg"
		if err := os.WriteFile(filepath.Join(tmpDir, testFile), content, 0644); err != nil {
			t.Fatalf("Failed to create test file: %v", err)
		}

		file, err := storage.OpenFile(testFile)
		if err != nil {
			t.Fatalf("Failed to open file: %v", err)
		}
		defer file.Close()

		buf := make([]byte, len(content))
		n, err := file.Read(buf)
		if err != nil {
			t.Fatalf("Failed to read file: %v", err)
		}
		if n != len(content) || string(buf) != string(content) {
			t.Errorf("File content mismatch")
		}
	})

	t.Run("DeleteFile", func(t *testing.T) {
		testFile := "delete-test.jpg"
		fullPath := filepath.Join(tmpDir, testFile)
		if err := os.WriteFile(fullPath, []byte("test"), 0644); err != nil {
			t.Fatalf("Failed to create test file: %v", err)
		}

		if err := storage.DeleteFile(testFile); err != nil {
			t.Fatalf("Failed to delete file: %v", err)
		}
		if _, err := os.Stat(fullPath); !os.IsNotExist(err) {
			t.Errorf("File was not deleted")
		}
	})

	t.Run("PathTraversalPrevention", func(t *testing.T) {
		if _, err := storage.OpenFile("../../../etc/passwd"); err == nil {
			t.Errorf("Path traversal was not prevented")
		}
		if err := storage.DeleteFile("../../../etc/passwd"); err == nil {
			t.Errorf("Path traversal was not prevented in delete")
		}
	})
}

func TestPrune(t *testing.T) {
	tmpDir := t.TempDir()
	storage, err := NewLocalStorage(tmpDir)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}

	face := image.NewRGBA(image.Rect(0, 0, 8, 8))
	oldRel, _ := storage.SaveSnapshot(face, SnapshotInfo{SchoolID: "A", StudentID: "1", Date: "2024-01-01"})
	newRel, _ := storage.SaveSnapshot(face, SnapshotInfo{SchoolID: "A", StudentID: "2", Date: "2024-02-01"})

	old := time.Now().Add(-72 * time.Hour)
	if err := os.Chtimes(filepath.Join(tmpDir, oldRel), old, old); err != nil {
		t.Fatalf("Failed to age snapshot: %v", err)
	}

	removed, err := storage.Prune(time.Now().Add(-24 * time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if removed != 1 {
		t.Errorf("Expected 1 removed, got %d", removed)
	}
	if _, err := os.Stat(filepath.Join(tmpDir, "2024-01-01")); !os.IsNotExist(err) {
		t.Errorf("Expected empty day directory to be removed")
	}
	if _, err := os.Stat(filepath.Join(tmpDir, newRel)); err != nil {
		t.Errorf("Recent snapshot should survive: %v", err)
	}
}
