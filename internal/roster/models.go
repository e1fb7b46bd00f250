package roster

import (
	"encoding/base64"
	"strings"
)

// School is a school profile as registered by a directorate office.
type School struct {
	SchoolID string `json:"schoolId" validate:"required,max=64,excludes=:"`
	Name     string `json:"name" validate:"required,max=200"`
	District string `json:"district" validate:"max=200"`
	Address  string `json:"address" validate:"max=500"`
	DOID     string `json:"doId" validate:"required,max=64,excludes=:"`
}

// Student is an enrolled pupil. Roll is the student id used in attendance
// records. FaceImage holds a data URL or bare base64 image.
type Student struct {
	Roll      string `json:"roll" validate:"required,max=64"`
	Name      string `json:"name" validate:"required,max=200"`
	ClassName string `json:"className" validate:"max=64"`
	Gender    string `json:"gender" validate:"omitempty,oneof=Male Female Other"`
	Guardian  string `json:"guardian,omitempty" validate:"max=200"`
	Phone     string `json:"phone,omitempty" validate:"max=32"`
	FaceImage string `json:"faceImage,omitempty"`
}

func (s Student) EnrolledID() string    { return s.Roll }
func (s Student) EnrolledClass() string { return s.ClassName }
func (s Student) EnrolledName() string  { return s.Name }

func (s Student) EnrolledImage() []byte {
	if s.FaceImage == "" {
		return nil
	}
	if strings.HasPrefix(s.FaceImage, "data:") {
		return []byte(s.FaceImage)
	}
	if raw, err := base64.StdEncoding.DecodeString(s.FaceImage); err == nil {
		return raw
	}
	return []byte(s.FaceImage)
}

// InClass mirrors the roll-call screens: students without a class belong to
// every class.
func (s Student) InClass(className string) bool {
	return s.ClassName == "" || s.ClassName == className
}

// Redacted drops the image payload for list responses.
func (s Student) Redacted() Student {
	if s.FaceImage != "" {
		s.FaceImage = "(image)"
	}
	return s
}
