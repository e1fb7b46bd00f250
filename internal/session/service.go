package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"sync"
	"time"

	"github.com/kdimtricp/rollcall/internal/attendance"
	"github.com/kdimtricp/rollcall/internal/camera"
	"github.com/kdimtricp/rollcall/internal/detect"
	"github.com/kdimtricp/rollcall/internal/events"
	"github.com/kdimtricp/rollcall/internal/faceindex"
	"github.com/kdimtricp/rollcall/internal/fingerprint"
	"github.com/kdimtricp/rollcall/internal/storage"
)

const subscriberBuffer = 32

type Config struct {
	Threshold int
	Interval  time.Duration
	Hasher    fingerprint.Hasher
	// Snapshots, when set, keeps a JPEG of every newly matched face.
	Snapshots storage.Storage
	Now       func() time.Time
}

// Service owns the camera and drives a single detection session at a time.
type Service struct {
	camera    camera.Source
	detector  detect.Detector
	store     *attendance.Store
	publisher events.Publisher
	snapshots storage.Storage
	hasher    fingerprint.Hasher
	threshold int
	interval  time.Duration
	now       func() time.Time

	mu        sync.RWMutex
	state     State
	target    *Target
	index     *faceindex.Index
	report    *faceindex.BuildReport
	warning   string
	marked    int
	startedAt *time.Time
	cancel    context.CancelFunc
	done      chan struct{}

	// tickMu serialises ticks so two passes never interleave their
	// read-check-write on the attendance store.
	tickMu sync.Mutex

	subMu       sync.Mutex
	subscribers map[chan Update]struct{}
}

func NewService(cam camera.Source, detector detect.Detector, store *attendance.Store, publisher events.Publisher, config Config) *Service {
	if config.Interval <= 0 {
		config.Interval = time.Second
	}
	if config.Hasher == nil {
		config.Hasher = fingerprint.Gradient{}
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if publisher == nil {
		publisher = events.LogPublisher{}
	}

	return &Service{
		camera:      cam,
		detector:    detector,
		store:       store,
		publisher:   publisher,
		snapshots:   config.Snapshots,
		hasher:      config.Hasher,
		threshold:   config.Threshold,
		interval:    config.Interval,
		now:         config.Now,
		state:       StateIdle,
		subscribers: make(map[chan Update]struct{}),
	}
}

// Subscribe returns a channel of session updates and a function that
// detaches it. Slow subscribers miss updates rather than stall the loop.
func (s *Service) Subscribe() (<-chan Update, func()) {
	ch := make(chan Update, subscriberBuffer)

	s.subMu.Lock()
	s.subscribers[ch] = struct{}{}
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subscribers, ch)
			s.subMu.Unlock()
			close(ch)
		})
	}
}

func (s *Service) broadcast(u Update) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	for ch := range s.subscribers {
		select {
		case ch <- u:
		default:
		}
	}
}

func (s *Service) broadcastState() {
	s.broadcast(Update{Type: UpdateState, Data: s.Status()})
}

func (s *Service) broadcastError(err error) {
	s.broadcast(Update{Type: UpdateError, Data: map[string]string{"message": err.Error()}})
}

func (s *Service) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Status{
		State:              s.state,
		Camera:             s.camera.Name(),
		DetectionAvailable: detect.Available(s.detector) == nil,
		References:         s.index.Len(),
		Warning:            s.warning,
		Marked:             s.marked,
		StartedAt:          s.startedAt,
	}
	if s.target != nil {
		t := *s.target
		st.Target = &t
	}
	if s.report != nil {
		r := *s.report
		st.Build = &r
	}
	return st
}

// StartCamera moves idle -> streaming. A camera that cannot be opened is
// reported as camera.ErrUnavailable and the session stays idle.
func (s *Service) StartCamera(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return nil
	}

	if err := s.camera.Open(ctx); err != nil {
		s.mu.Unlock()
		if !errors.Is(err, camera.ErrUnavailable) {
			err = &camera.UnavailableError{Source: s.camera.Name(), Err: err}
		}
		log.Printf("[SESSION] Camera start failed: %v", err)
		s.broadcastError(err)
		return err
	}

	s.state = StateStreaming
	s.mu.Unlock()

	log.Printf("[SESSION] Camera %s streaming", s.camera.Name())
	s.broadcastState()
	return nil
}

// StopCamera ends detection if it is running and releases the camera.
func (s *Service) StopCamera() error {
	s.StopDetection()

	s.mu.Lock()
	if s.state == StateIdle {
		s.mu.Unlock()
		return nil
	}
	err := s.camera.Close()
	s.state = StateIdle
	s.mu.Unlock()

	if err != nil {
		log.Printf("[SESSION] Camera close failed: %v", err)
	}
	log.Printf("[SESSION] Camera stopped")
	s.broadcastState()
	return err
}

// StartDetection builds the reference index for the target class and starts
// the periodic match loop. An empty index is not an error: detection runs
// and the status carries a warning. An unavailable detector leaves the
// session streaming.
func (s *Service) StartDetection(ctx context.Context, target Target, references []faceindex.Enrolled) error {
	if err := target.key(s.now()).Validate(); err != nil {
		return fmt.Errorf("invalid target: %w", err)
	}
	if target.Window != nil {
		if err := target.Window.Validate(); err != nil {
			return fmt.Errorf("invalid target: %w", err)
		}
	}

	s.mu.Lock()
	switch s.state {
	case StateIdle:
		s.mu.Unlock()
		return ErrNotStreaming
	case StateDetecting:
		s.mu.Unlock()
		return ErrAlreadyDetecting
	}

	if err := detect.Available(s.detector); err != nil {
		s.mu.Unlock()
		log.Printf("[SESSION] Detection not started: %v", err)
		s.broadcastError(err)
		return err
	}

	index, report := faceindex.Build(references, s.hasher)
	log.Printf("[SESSION] Indexed %d reference faces for %s/%s (%d without image, %d failed)",
		report.Indexed, target.SchoolID, target.ClassName, report.NoImage, report.Failed)

	warning := ""
	if index.Len() == 0 {
		warning = faceindex.ErrNoReferences.Error()
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	now := s.now()

	s.state = StateDetecting
	s.target = &target
	s.index = index
	s.report = &report
	s.warning = warning
	s.marked = 0
	s.startedAt = &now
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	go s.run(loopCtx, done)

	if warning != "" {
		log.Printf("[SESSION] Detection started with a warning: %s", warning)
		s.broadcast(Update{Type: UpdateWarning, Data: map[string]string{"message": warning}})
	}
	s.broadcastState()
	return nil
}

// ActiveTarget returns the class being detected, if any.
func (s *Service) ActiveTarget() (Target, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateDetecting || s.target == nil {
		return Target{}, false
	}
	return *s.target, true
}

// ReloadReferences swaps in a fresh index built from references when the
// roster of the class being detected changed. It waits for an in-flight tick
// so no pass matches against a half-replaced index. It reports false, and
// leaves the session alone, when schoolID/className is not the active target.
func (s *Service) ReloadReferences(schoolID, className string, references []faceindex.Enrolled) bool {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	s.mu.Lock()
	if s.state != StateDetecting || s.target == nil ||
		s.target.SchoolID != schoolID || s.target.ClassName != className {
		s.mu.Unlock()
		return false
	}

	index, report := faceindex.Build(references, s.hasher)
	warning := ""
	if index.Len() == 0 {
		warning = faceindex.ErrNoReferences.Error()
	}
	s.index = index
	s.report = &report
	s.warning = warning
	s.mu.Unlock()

	log.Printf("[SESSION] Roster changed, re-indexed %d reference faces for %s/%s (%d without image, %d failed)",
		report.Indexed, schoolID, className, report.NoImage, report.Failed)
	if warning != "" {
		s.broadcast(Update{Type: UpdateWarning, Data: map[string]string{"message": warning}})
	}
	s.broadcastState()
	return true
}

// StopDetection cancels the loop, waits for it to exit and returns to
// streaming. Marks already committed stay.
func (s *Service) StopDetection() {
	s.mu.Lock()
	if s.state != StateDetecting || s.cancel == nil {
		s.mu.Unlock()
		return
	}
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	log.Printf("[SESSION] Stopping detection")
	cancel()
	<-done

	if s.finish(done, StateStreaming) {
		s.broadcastState()
	}
}

// finish clears the run identified by done. It reports false when another
// caller already did.
func (s *Service) finish(done chan struct{}, next State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done != done {
		return false
	}
	s.cancel = nil
	s.done = nil
	s.index = nil
	s.warning = ""
	s.state = next
	if next == StateIdle {
		if err := s.camera.Close(); err != nil {
			log.Printf("[SESSION] Camera close failed: %v", err)
		}
	}
	return true
}

func (s *Service) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		// Checked again in case cancellation raced with the tick.
		if ctx.Err() != nil {
			return
		}

		_, err := s.Tick(ctx)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return
		case errors.Is(err, camera.ErrUnavailable):
			log.Printf("[SESSION] Camera lost, ending session: %v", err)
			s.abort(done, StateIdle, err)
			return
		case errors.Is(err, detect.ErrUnavailable):
			log.Printf("[SESSION] Detector unavailable, disabling detection: %v", err)
			s.abort(done, StateStreaming, err)
			return
		default:
			log.Printf("[SESSION] Tick failed: %v", err)
			s.broadcastError(err)
		}
	}
}

// abort ends the session from inside the loop. The deferred close(done) in
// run still fires afterwards, so StopDetection callers are released.
func (s *Service) abort(done chan struct{}, next State, cause error) {
	if s.finish(done, next) {
		s.broadcastError(cause)
		s.broadcastState()
	}
}

// Tick runs one capture-detect-match pass. Region-level failures are logged
// and skipped; only frame and detector failures are returned.
func (s *Service) Tick(ctx context.Context) (*TickResult, error) {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	s.mu.RLock()
	state, target, index := s.state, s.target, s.index
	s.mu.RUnlock()

	if state != StateDetecting || target == nil {
		return nil, ErrNotDetecting
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	frame, err := s.camera.Frame(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read frame: %w", err)
	}

	regions, err := s.detector.Detect(ctx, frame)
	if err != nil {
		return nil, fmt.Errorf("failed to detect faces: %w", err)
	}

	result := &TickResult{Regions: len(regions), Marked: []PresentMark{}}

	for i, region := range regions {
		crop := detect.Crop(frame, region)
		if crop == nil {
			result.Unmatched++
			continue
		}

		fp, err := s.hasher.Hash(crop)
		if err != nil {
			log.Printf("[MATCH] Region %d: %v", i, err)
			result.Unmatched++
			continue
		}

		match := index.Nearest(fp)
		if !match.Accepted(s.threshold) {
			result.Unmatched++
			continue
		}

		now := s.now()
		if target.Window != nil && !target.Window.Contains(now) {
			log.Printf("[MATCH] %s matched outside the %s-%s window, not marked",
				match.Candidate.StudentID, target.Window.Start, target.Window.End)
			result.Unmatched++
			continue
		}

		mark, err := s.commit(ctx, *target, match, crop, now)
		if err != nil {
			log.Printf("[MATCH] Failed to mark %s present: %v", match.Candidate.StudentID, err)
			continue
		}
		if mark == nil {
			result.Repeats++
			continue
		}
		result.Marked = append(result.Marked, *mark)
	}

	return result, nil
}

// commit marks the candidate present. It returns nil when the student was
// already marked for the key. Delivery runs detached from ctx so a committed
// mark is still reported when the session is stopped mid-tick.
func (s *Service) commit(ctx context.Context, target Target, match faceindex.MatchResult, crop image.Image, now time.Time) (*PresentMark, error) {
	key := target.key(now)
	student := match.Candidate

	marked, err := s.store.MarkPresent(ctx, key, student.StudentID)
	if err != nil {
		return nil, err
	}
	if !marked {
		return nil, nil
	}

	log.Printf("[MATCH] %s (%s) marked present for %s, distance %d",
		student.StudentID, student.DisplayName, key, match.Distance)

	mark := &PresentMark{
		StudentID:   student.StudentID,
		DisplayName: student.DisplayName,
		ClassName:   key.ClassName,
		Date:        key.Date,
		Distance:    match.Distance,
		At:          now,
	}

	if s.snapshots != nil {
		path, err := s.snapshots.SaveSnapshot(crop, storage.SnapshotInfo{
			SchoolID:  key.SchoolID,
			StudentID: student.StudentID,
			Date:      key.Date,
		})
		if err != nil {
			log.Printf("[MATCH] Snapshot for %s not saved: %v", student.StudentID, err)
		} else {
			mark.Snapshot = path
		}
	}

	s.mu.Lock()
	s.marked++
	s.mu.Unlock()

	event := events.New(key.DirectorateID, key.SchoolID, key.Date, key.ClassName, student.StudentID, events.StatusPresent)
	event.At = now
	event.Snapshot = mark.Snapshot
	if err := s.publisher.Publish(context.WithoutCancel(ctx), event); err != nil {
		log.Printf("[MATCH] Delivery failed for %s: %v", student.StudentID, err)
	}

	s.broadcast(Update{Type: UpdatePresent, Data: *mark})
	return mark, nil
}
