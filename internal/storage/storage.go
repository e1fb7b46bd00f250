package storage

import (
	"image"
	"io"
	"time"
)

// SnapshotInfo identifies the matched face a snapshot belongs to.
type SnapshotInfo struct {
	SchoolID  string
	StudentID string
	Date      string
}

type Storage interface {
	SaveSnapshot(img image.Image, info SnapshotInfo) (string, error)
	OpenFile(path string) (io.ReadSeekCloser, error)
	DeleteFile(path string) error
	Prune(before time.Time) (int, error)
}
