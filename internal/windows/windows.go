package windows

import (
	"context"
	"fmt"
	"time"

	"github.com/kdimtricp/rollcall/internal/kvstore"
)

const (
	DefaultStart = "08:30"
	DefaultEnd   = "10:00"

	clockLayout = "15:04"
)

// Window is the daily attendance-taking period of a school, in local time.
type Window struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

func Default() Window {
	return Window{Start: DefaultStart, End: DefaultEnd}
}

func (w Window) Validate() error {
	start, err := time.Parse(clockLayout, w.Start)
	if err != nil {
		return fmt.Errorf("invalid start %q: %w", w.Start, err)
	}
	end, err := time.Parse(clockLayout, w.End)
	if err != nil {
		return fmt.Errorf("invalid end %q: %w", w.End, err)
	}
	if !end.After(start) {
		return fmt.Errorf("window end %s must be after start %s", w.End, w.Start)
	}
	return nil
}

func (w Window) bounds(t time.Time) (time.Time, time.Time, error) {
	if err := w.Validate(); err != nil {
		return time.Time{}, time.Time{}, err
	}
	s, _ := time.Parse(clockLayout, w.Start)
	e, _ := time.Parse(clockLayout, w.End)
	y, m, d := t.Date()
	loc := t.Location()
	return time.Date(y, m, d, s.Hour(), s.Minute(), 0, 0, loc),
		time.Date(y, m, d, e.Hour(), e.Minute(), 0, 0, loc), nil
}

// Contains reports whether t falls inside [Start, End).
func (w Window) Contains(t time.Time) bool {
	start, end, err := w.bounds(t)
	if err != nil {
		return false
	}
	return !t.Before(start) && t.Before(end)
}

// Closed reports whether the window for t's day has ended.
func (w Window) Closed(t time.Time) bool {
	_, end, err := w.bounds(t)
	if err != nil {
		return true
	}
	return !t.Before(end)
}

type Store struct {
	kv kvstore.Store
}

func NewStore(kv kvstore.Store) *Store {
	return &Store{kv: kv}
}

func keyFor(schoolID, edge string) string {
	return "window:school:" + schoolID + ":" + edge
}

// Get returns the school's window, falling back to the default for any edge
// that was never configured.
func (s *Store) Get(ctx context.Context, schoolID string) (Window, error) {
	w := Default()
	for edge, dst := range map[string]*string{"start": &w.Start, "end": &w.End} {
		raw, found, err := s.kv.Get(ctx, keyFor(schoolID, edge))
		if err != nil {
			return Window{}, fmt.Errorf("failed to read window %s: %w", edge, err)
		}
		if found && len(raw) > 0 {
			*dst = string(raw)
		}
	}
	return w, nil
}

func (s *Store) Set(ctx context.Context, schoolID string, w Window) error {
	if err := w.Validate(); err != nil {
		return err
	}
	if err := s.kv.Set(ctx, keyFor(schoolID, "start"), []byte(w.Start)); err != nil {
		return fmt.Errorf("failed to write window start: %w", err)
	}
	if err := s.kv.Set(ctx, keyFor(schoolID, "end"), []byte(w.End)); err != nil {
		return fmt.Errorf("failed to write window end: %w", err)
	}
	return nil
}
