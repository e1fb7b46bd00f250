package session

import (
	"errors"
	"time"

	"github.com/kdimtricp/rollcall/internal/attendance"
	"github.com/kdimtricp/rollcall/internal/faceindex"
	"github.com/kdimtricp/rollcall/internal/windows"
)

type State string

const (
	StateIdle      State = "idle"
	StateStreaming State = "streaming"
	StateDetecting State = "detecting"
)

var (
	ErrNotStreaming     = errors.New("camera is not streaming")
	ErrAlreadyDetecting = errors.New("detection already running")
	ErrNotDetecting     = errors.New("detection is not running")
)

// Target is the class a detection session marks attendance for. A non-nil
// Window restricts marks to the school's attendance window.
type Target struct {
	DirectorateID string          `json:"directorateId"`
	SchoolID      string          `json:"schoolId"`
	ClassName     string          `json:"className"`
	Window        *windows.Window `json:"window,omitempty"`
}

func (t Target) key(now time.Time) attendance.Key {
	return attendance.Key{
		DirectorateID: t.DirectorateID,
		SchoolID:      t.SchoolID,
		Date:          attendance.DateOf(now),
		ClassName:     t.ClassName,
	}
}

type Status struct {
	State              State                  `json:"state"`
	Camera             string                 `json:"camera"`
	DetectionAvailable bool                   `json:"detectionAvailable"`
	Target             *Target                `json:"target,omitempty"`
	References         int                    `json:"references"`
	Build              *faceindex.BuildReport `json:"build,omitempty"`
	Warning            string                 `json:"warning,omitempty"`
	Marked             int                    `json:"marked"`
	StartedAt          *time.Time             `json:"startedAt,omitempty"`
}

const (
	UpdateState   = "state"
	UpdatePresent = "present"
	UpdateWarning = "warning"
	UpdateError   = "error"
)

type Update struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// PresentMark is published once per student per class and day.
type PresentMark struct {
	StudentID   string    `json:"studentId"`
	DisplayName string    `json:"displayName"`
	ClassName   string    `json:"className"`
	Date        string    `json:"date"`
	Distance    int       `json:"distance"`
	Snapshot    string    `json:"snapshot,omitempty"`
	At          time.Time `json:"at"`
}

// TickResult summarises one pass of the match loop.
type TickResult struct {
	Regions   int           `json:"regions"`
	Unmatched int           `json:"unmatched"`
	Repeats   int           `json:"repeats"`
	Marked    []PresentMark `json:"marked"`
}
