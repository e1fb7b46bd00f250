package roster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/kdimtricp/rollcall/internal/fingerprint"
	"github.com/kdimtricp/rollcall/internal/kvstore"
)

const (
	schoolsKey       = "schools"
	studentKeyPrefix = "students:"

	MinFaceSize = 200
)

var (
	ErrNotFound      = errors.New("student not found")
	ErrDuplicateRoll = errors.New("roll number already enrolled")
	ErrMissingFace   = errors.New("capture a clear face image before saving")
	ErrFaceTooSmall  = fmt.Errorf("face image too small: need at least %dx%d", MinFaceSize, MinFaceSize)
)

// ValidationError carries per-field messages from the validator.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for f, msg := range e.Fields {
		parts = append(parts, f+": "+msg)
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

type Repository struct {
	kv       kvstore.Store
	validate *validator.Validate
	mu       sync.Mutex
}

func NewRepository(kv kvstore.Store) *Repository {
	return &Repository{
		kv:       kv,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (r *Repository) check(v interface{}) error {
	err := r.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}
	return &ValidationError{Fields: fields}
}

func readJSON[T any](ctx context.Context, kv kvstore.Store, key string) ([]T, error) {
	raw, found, err := kv.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	out := []T{}
	if !found || len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return out, nil
}

func writeJSON[T any](ctx context.Context, kv kvstore.Store, key string, v []T) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := kv.Set(ctx, key, raw); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

func (r *Repository) Schools(ctx context.Context) ([]School, error) {
	return readJSON[School](ctx, r.kv, schoolsKey)
}

// SchoolsForDirectorate lists the schools registered under doID.
func (r *Repository) SchoolsForDirectorate(ctx context.Context, doID string) ([]School, error) {
	all, err := r.Schools(ctx)
	if err != nil {
		return nil, err
	}
	out := []School{}
	for _, s := range all {
		if s.DOID == doID {
			out = append(out, s)
		}
	}
	return out, nil
}

// SaveSchool adds a school or replaces the one with the same id.
func (r *Repository) SaveSchool(ctx context.Context, school School) error {
	if err := r.check(school); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	schools, err := r.Schools(ctx)
	if err != nil {
		return err
	}
	replaced := false
	for i := range schools {
		if schools[i].SchoolID == school.SchoolID {
			schools[i] = school
			replaced = true
		}
	}
	if !replaced {
		schools = append(schools, school)
	}
	return writeJSON(ctx, r.kv, schoolsKey, schools)
}

func (r *Repository) Students(ctx context.Context, schoolID string) ([]Student, error) {
	return readJSON[Student](ctx, r.kv, studentKeyPrefix+schoolID)
}

// ClassRoster returns the students taking roll call in className.
func (r *Repository) ClassRoster(ctx context.Context, schoolID, className string) ([]Student, error) {
	all, err := r.Students(ctx, schoolID)
	if err != nil {
		return nil, err
	}
	out := []Student{}
	for _, s := range all {
		if s.InClass(className) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *Repository) checkStudent(st Student) error {
	if err := r.check(st); err != nil {
		return err
	}
	data := st.EnrolledImage()
	if len(data) == 0 {
		return ErrMissingFace
	}
	img, err := fingerprint.Decode(data)
	if err != nil {
		return err
	}
	if b := img.Bounds(); b.Dx() < MinFaceSize || b.Dy() < MinFaceSize {
		return ErrFaceTooSmall
	}
	return nil
}

// Enroll validates and appends a student to the school's roster.
func (r *Repository) Enroll(ctx context.Context, schoolID string, st Student) error {
	if schoolID == "" || strings.Contains(schoolID, ":") {
		return &ValidationError{Fields: map[string]string{"schoolId": "required"}}
	}
	if err := r.checkStudent(st); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := studentKeyPrefix + schoolID
	students, err := readJSON[Student](ctx, r.kv, key)
	if err != nil {
		return err
	}
	for _, existing := range students {
		if existing.Roll == st.Roll {
			return ErrDuplicateRoll
		}
	}
	return writeJSON(ctx, r.kv, key, append(students, st))
}

// Update replaces the student with the same roll. With an empty schoolID the
// student is looked up across every school roster. It returns the school the
// student belongs to.
func (r *Repository) Update(ctx context.Context, schoolID string, st Student) (string, error) {
	if err := r.checkStudent(st); err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	keys := []string{studentKeyPrefix + schoolID}
	if schoolID == "" {
		var err error
		keys, err = r.kv.Keys(ctx, studentKeyPrefix)
		if err != nil {
			return "", fmt.Errorf("failed to list rosters: %w", err)
		}
	}

	for _, key := range keys {
		students, err := readJSON[Student](ctx, r.kv, key)
		if err != nil {
			return "", err
		}
		for i := range students {
			if students[i].Roll == st.Roll {
				students[i] = st
				if err := writeJSON(ctx, r.kv, key, students); err != nil {
					return "", err
				}
				return strings.TrimPrefix(key, studentKeyPrefix), nil
			}
		}
	}
	return "", ErrNotFound
}
