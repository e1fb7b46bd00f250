package attendance

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/kdimtricp/rollcall/internal/kvstore"
)

// Store keeps present sets keyed by Key. Every read-check-write runs under a
// per-key mutex so concurrent ticks and sweeps cannot both see "not marked"
// for the same student. The lock is per process; a shared database used by
// several processes would need a transaction instead.
type Store struct {
	kv kvstore.Store

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewStore(kv kvstore.Store) *Store {
	return &Store{
		kv:    kv,
		locks: make(map[string]*sync.Mutex),
	}
}

func (s *Store) lock(key string) func() {
	s.mu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func (s *Store) readSet(ctx context.Context, key string) (map[string]bool, error) {
	raw, found, err := s.kv.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	set := make(map[string]bool)
	if !found || len(raw) == 0 {
		return set, nil
	}
	if err := json.Unmarshal(raw, &set); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return set, nil
}

func (s *Store) writeSet(ctx context.Context, key string, set map[string]bool) error {
	raw, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := s.kv.Set(ctx, key, raw); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

// Present returns the studentId -> present map for key. A missing record is
// an empty map.
func (s *Store) Present(ctx context.Context, key Key) (map[string]bool, error) {
	return s.readSet(ctx, key.String())
}

// MarkPresent records studentID as present. It reports false, and writes
// nothing, when the student was already marked.
func (s *Store) MarkPresent(ctx context.Context, key Key, studentID string) (bool, error) {
	return s.addOnce(ctx, key.String(), studentID)
}

// Override replaces the whole record, as the manual attendance form does.
func (s *Store) Override(ctx context.Context, key Key, present map[string]bool) error {
	k := key.String()
	unlock := s.lock(k)
	defer unlock()

	if present == nil {
		present = map[string]bool{}
	}
	return s.writeSet(ctx, k, present)
}

func (s *Store) addOnce(ctx context.Context, key, studentID string) (bool, error) {
	unlock := s.lock(key)
	defer unlock()

	set, err := s.readSet(ctx, key)
	if err != nil {
		return false, err
	}
	if set[studentID] {
		return false, nil
	}
	set[studentID] = true
	if err := s.writeSet(ctx, key, set); err != nil {
		return false, err
	}
	return true, nil
}

type absentOutcome int

const (
	outcomeReported absentOutcome = iota
	outcomePresent
	outcomeAlreadyReported
)

// markAbsent holds the present-set lock while it records the absence, so a
// concurrent MarkPresent for the same student lands either before (student is
// skipped) or after (absence already reported) but never interleaved.
func (s *Store) markAbsent(ctx context.Context, key Key, studentID string) (absentOutcome, error) {
	unlock := s.lock(key.String())
	defer unlock()

	present, err := s.readSet(ctx, key.String())
	if err != nil {
		return 0, err
	}
	if present[studentID] {
		return outcomePresent, nil
	}

	added, err := s.addOnce(ctx, key.reportedKey(), studentID)
	if err != nil {
		return 0, err
	}
	if !added {
		return outcomeAlreadyReported, nil
	}
	return outcomeReported, nil
}

// SchoolTotal is the number of students marked present across every class of
// a school on one day.
type SchoolTotal struct {
	SchoolID string `json:"schoolId"`
	Present  int    `json:"present"`
	Classes  int    `json:"classes"`
}

// Summary totals present marks per school for a directorate and date.
func (s *Store) Summary(ctx context.Context, directorateID string, schoolIDs []string, date string) ([]SchoolTotal, error) {
	totals := make([]SchoolTotal, 0, len(schoolIDs))
	for _, schoolID := range schoolIDs {
		keys, err := s.kv.Keys(ctx, dayPrefix(directorateID, schoolID, date))
		if err != nil {
			return nil, fmt.Errorf("failed to list attendance for %s: %w", schoolID, err)
		}

		total := SchoolTotal{SchoolID: schoolID, Classes: len(keys)}
		for _, k := range keys {
			set, err := s.readSet(ctx, k)
			if err != nil {
				return nil, err
			}
			for _, present := range set {
				if present {
					total.Present++
				}
			}
		}
		totals = append(totals, total)
	}
	return totals, nil
}
