package faceindex

import (
	"errors"
	"log"

	"github.com/kdimtricp/rollcall/internal/fingerprint"
)

// DefaultThreshold accepts up to 10 differing bits (~84% agreement). It is a
// heuristic with no calibration data behind it; deployments tune it through
// match.threshold.
const DefaultThreshold = 10

var ErrNoReferences = errors.New("no reference faces available")

// Enrolled is the slice of a roster entry the index needs.
type Enrolled interface {
	EnrolledID() string
	EnrolledClass() string
	EnrolledName() string
	EnrolledImage() []byte
}

type ReferenceFace struct {
	StudentID   string                  `json:"studentId"`
	ClassName   string                  `json:"className"`
	DisplayName string                  `json:"displayName"`
	Fingerprint fingerprint.Fingerprint `json:"fingerprint"`
}

type MatchResult struct {
	Candidate *ReferenceFace `json:"candidate,omitempty"`
	Distance  int            `json:"distance"`
}

// Accepted reports whether the nearest candidate is within threshold bits.
func (m MatchResult) Accepted(threshold int) bool {
	return m.Candidate != nil && m.Distance <= threshold
}

// Index is immutable once built; a new roster means a new Index.
type Index struct {
	faces []ReferenceFace
}

func New(faces ...ReferenceFace) *Index {
	cp := make([]ReferenceFace, len(faces))
	copy(cp, faces)
	return &Index{faces: cp}
}

type BuildReport struct {
	Indexed  int      `json:"indexed"`
	NoImage  int      `json:"noImage"`
	Failed   int      `json:"failed"`
	Failures []string `json:"failures,omitempty"`
}

// Build fingerprints every record that carries an image. Records without one
// are skipped; records whose image fails to decode or hash are reported and
// skipped. Order follows the input and duplicates are kept.
func Build[T Enrolled](records []T, hasher fingerprint.Hasher) (*Index, BuildReport) {
	var report BuildReport
	faces := make([]ReferenceFace, 0, len(records))

	for _, rec := range records {
		data := rec.EnrolledImage()
		if len(data) == 0 {
			report.NoImage++
			continue
		}

		img, err := fingerprint.Decode(data)
		if err != nil {
			report.Failed++
			report.Failures = append(report.Failures, rec.EnrolledID()+": "+err.Error())
			log.Printf("[INDEX] Skipping %s: %v", rec.EnrolledID(), err)
			continue
		}

		fp, err := hasher.Hash(img)
		if err != nil {
			report.Failed++
			report.Failures = append(report.Failures, rec.EnrolledID()+": "+err.Error())
			log.Printf("[INDEX] Skipping %s: %v", rec.EnrolledID(), err)
			continue
		}

		faces = append(faces, ReferenceFace{
			StudentID:   rec.EnrolledID(),
			ClassName:   rec.EnrolledClass(),
			DisplayName: rec.EnrolledName(),
			Fingerprint: fp,
		})
	}

	report.Indexed = len(faces)
	return &Index{faces: faces}, report
}

func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.faces)
}

func (idx *Index) Faces() []ReferenceFace {
	if idx == nil {
		return nil
	}
	cp := make([]ReferenceFace, len(idx.faces))
	copy(cp, idx.faces)
	return cp
}

// Nearest scans every reference and returns the closest one. Ties keep the
// earliest entry. An empty index yields a result with no candidate.
func (idx *Index) Nearest(fp fingerprint.Fingerprint) MatchResult {
	result := MatchResult{Distance: 65}
	if idx == nil {
		return result
	}
	best := -1
	for i := range idx.faces {
		d := fingerprint.Distance(fp, idx.faces[i].Fingerprint)
		if d < result.Distance {
			result.Distance = d
			best = i
		}
	}
	if best >= 0 {
		face := idx.faces[best]
		result.Candidate = &face
	}
	return result
}
