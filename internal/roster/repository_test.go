package roster

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/kdimtricp/rollcall/internal/kvstore"
)

func faceDataURL(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestEnroll(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(kvstore.NewMemory())
	face := faceDataURL(t, 220, 220)

	tests := []struct {
		name    string
		student Student
		wantErr error
	}{
		{
			name:    "valid student",
			student: Student{Roll: "S001", Name: "Asha", ClassName: "7A", Gender: "Female", FaceImage: face},
		},
		{
			name:    "duplicate roll",
			student: Student{Roll: "S001", Name: "Asha Again", FaceImage: face},
			wantErr: ErrDuplicateRoll,
		},
		{
			name:    "missing face",
			student: Student{Roll: "S002", Name: "Bilal"},
			wantErr: ErrMissingFace,
		},
		{
			name:    "face too small",
			student: Student{Roll: "S003", Name: "Chen", FaceImage: faceDataURL(t, 120, 220)},
			wantErr: ErrFaceTooSmall,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := repo.Enroll(ctx, "SCH1", tt.student)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	students, err := repo.Students(ctx, "SCH1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(students) != 1 || students[0].Roll != "S001" {
		t.Errorf("Expected only S001 enrolled, got %+v", students)
	}
}

func TestEnroll_ValidationError(t *testing.T) {
	repo := NewRepository(kvstore.NewMemory())
	err := repo.Enroll(context.Background(), "SCH1", Student{Roll: "S1", Gender: "Robot", FaceImage: faceDataURL(t, 200, 200)})

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Expected ValidationError, got %v", err)
	}
	if _, ok := verr.Fields["Name"]; !ok {
		t.Errorf("Expected Name to be flagged, got %v", verr.Fields)
	}
	if _, ok := verr.Fields["Gender"]; !ok {
		t.Errorf("Expected Gender to be flagged, got %v", verr.Fields)
	}

	if err := repo.Enroll(context.Background(), "", Student{}); !errors.As(err, &verr) {
		t.Errorf("Expected ValidationError for missing school, got %v", err)
	}
}

func TestClassRoster(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(kvstore.NewMemory())
	face := faceDataURL(t, 200, 200)

	for _, st := range []Student{
		{Roll: "S1", Name: "A", ClassName: "7A", FaceImage: face},
		{Roll: "S2", Name: "B", ClassName: "7B", FaceImage: face},
		{Roll: "S3", Name: "C", FaceImage: face},
	} {
		if err := repo.Enroll(ctx, "SCH1", st); err != nil {
			t.Fatalf("failed to enroll %s: %v", st.Roll, err)
		}
	}

	roster, err := repo.ClassRoster(ctx, "SCH1", "7A")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(roster) != 2 || roster[0].Roll != "S1" || roster[1].Roll != "S3" {
		t.Errorf("Unexpected 7A roster %+v", roster)
	}

	empty, err := repo.ClassRoster(ctx, "OTHER", "7A")
	if err != nil || len(empty) != 0 {
		t.Errorf("Expected empty roster for unknown school, got %v %v", empty, err)
	}
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(kvstore.NewMemory())
	face := faceDataURL(t, 200, 200)

	if err := repo.Enroll(ctx, "SCH2", Student{Roll: "S9", Name: "Old", FaceImage: face}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	school, err := repo.Update(ctx, "", Student{Roll: "S9", Name: "New", ClassName: "8C", FaceImage: face})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if school != "SCH2" {
		t.Errorf("Expected SCH2, got %q", school)
	}
	students, _ := repo.Students(ctx, "SCH2")
	if students[0].Name != "New" || students[0].ClassName != "8C" {
		t.Errorf("Update not applied: %+v", students[0])
	}

	if _, err := repo.Update(ctx, "", Student{Roll: "NOPE", Name: "X", FaceImage: face}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestSchools(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(kvstore.NewMemory())

	for _, s := range []School{
		{SchoolID: "SCH1", Name: "North", DOID: "DO1"},
		{SchoolID: "SCH2", Name: "South", DOID: "DO2"},
		{SchoolID: "SCH1", Name: "North Renamed", DOID: "DO1"},
	} {
		if err := repo.SaveSchool(ctx, s); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	all, _ := repo.Schools(ctx)
	if len(all) != 2 {
		t.Fatalf("Expected 2 schools, got %d", len(all))
	}
	do1, _ := repo.SchoolsForDirectorate(ctx, "DO1")
	if len(do1) != 1 || do1[0].Name != "North Renamed" {
		t.Errorf("Unexpected DO1 schools %+v", do1)
	}

	if err := repo.SaveSchool(ctx, School{SchoolID: "bad:id", Name: "X", DOID: "DO1"}); err == nil {
		t.Error("Expected error for id containing ':'")
	}
}

func TestEnrolledImage(t *testing.T) {
	raw := []byte{0x89, 'P', 'N', 'G'}
	tests := []struct {
		name string
		in   string
		want []byte
	}{
		{"empty", "", nil},
		{"data url kept", "data:image/png;base64,AAAA", []byte("data:image/png;base64,AAAA")},
		{"bare base64 decoded", base64.StdEncoding.EncodeToString(raw), raw},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Student{FaceImage: tt.in}.EnrolledImage()
			if !bytes.Equal(got, tt.want) {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}
