package attendance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kdimtricp/rollcall/internal/events"
	"github.com/kdimtricp/rollcall/internal/kvstore"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

type failingKV struct {
	*kvstore.Memory
	failKey string
}

func (f *failingKV) Set(ctx context.Context, key string, value []byte) error {
	if key == f.failKey {
		return errors.New("disk full")
	}
	return f.Memory.Set(ctx, key, value)
}

var testKey = Key{DirectorateID: "DO1", SchoolID: "SCH1", Date: "2024-01-10", ClassName: "7A"}

func TestKeyString(t *testing.T) {
	if got := testKey.String(); got != "attendance:DO1:SCH1:2024-01-10:7A" {
		t.Errorf("Unexpected key %q", got)
	}

	parsed, err := ParseKey("attendance:DO1:SCH1:2024-01-10:Class 7:B")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parsed.ClassName != "Class 7:B" {
		t.Errorf("Expected class with colon preserved, got %q", parsed.ClassName)
	}

	for _, bad := range []string{"students:SCH1", "attendance:DO1:SCH1:10-01-2024:7A", "attendance:DO1"} {
		if _, err := ParseKey(bad); err == nil {
			t.Errorf("Expected error for %q", bad)
		}
	}
}

func TestDateOf(t *testing.T) {
	ts := time.Date(2024, 1, 10, 9, 15, 0, 0, time.Local)
	if got := DateOf(ts); got != "2024-01-10" {
		t.Errorf("Expected 2024-01-10, got %s", got)
	}
}

func TestMarkPresent_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := NewStore(kvstore.NewMemory())

	first, err := store.MarkPresent(ctx, testKey, "S007")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !first {
		t.Error("Expected first mark to be new")
	}

	second, err := store.MarkPresent(ctx, testKey, "S007")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second {
		t.Error("Expected repeat mark to be a no-op")
	}

	present, _ := store.Present(ctx, testKey)
	if len(present) != 1 || !present["S007"] {
		t.Errorf("Unexpected present set %v", present)
	}
}

func TestMarkPresent_ConcurrentSingleWinner(t *testing.T) {
	ctx := context.Background()
	store := NewStore(kvstore.NewMemory())

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.MarkPresent(ctx, testKey, "S1")
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if ok {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if winners != 1 {
		t.Errorf("Expected exactly one winner, got %d", winners)
	}
}

func TestOverride(t *testing.T) {
	ctx := context.Background()
	store := NewStore(kvstore.NewMemory())

	store.MarkPresent(ctx, testKey, "S1")
	if err := store.Override(ctx, testKey, map[string]bool{"S2": true, "S3": false}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	present, _ := store.Present(ctx, testKey)
	if present["S1"] || !present["S2"] || present["S3"] {
		t.Errorf("Override did not replace the record: %v", present)
	}
}

func TestSweep(t *testing.T) {
	ctx := context.Background()
	store := NewStore(kvstore.NewMemory())
	publisher := &recordingPublisher{}
	sweeper := NewSweeper(store, publisher)

	if _, err := store.MarkPresent(ctx, testKey, "S1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	report, err := sweeper.Sweep(ctx, testKey, []string{"S1", "S2", "S3"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(publisher.events) != 2 {
		t.Fatalf("Expected 2 absent events, got %d", len(publisher.events))
	}
	for i, expected := range []string{"S2", "S3"} {
		e := publisher.events[i]
		if e.StudentID != expected || e.Status != events.StatusAbsent {
			t.Errorf("Event %d: expected absent %s, got %s %s", i, expected, e.Status, e.StudentID)
		}
		if e.ClassName != "7A" || e.Date != "2024-01-10" {
			t.Errorf("Event %d carries wrong key: %+v", i, e)
		}
	}
	if report.AlreadyPresent != 1 || len(report.Absent) != 2 {
		t.Errorf("Unexpected report %+v", report)
	}

	t.Run("rerun emits nothing", func(t *testing.T) {
		report, err := sweeper.Sweep(ctx, testKey, []string{"S1", "S2", "S3"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(publisher.events) != 2 {
			t.Errorf("Expected no new events, total now %d", len(publisher.events))
		}
		if report.AlreadyReported != 2 {
			t.Errorf("Expected 2 already reported, got %d", report.AlreadyReported)
		}
	})
}

func TestSweep_DeliveryFailureIsSwallowed(t *testing.T) {
	ctx := context.Background()
	publisher := &recordingPublisher{err: errors.New("relay down")}
	sweeper := NewSweeper(NewStore(kvstore.NewMemory()), publisher)

	report, err := sweeper.Sweep(ctx, testKey, []string{"S1", "S2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.Absent) != 2 || len(publisher.events) != 2 {
		t.Errorf("Expected both students swept despite delivery errors: %+v", report)
	}
}

// cancellingPublisher cancels the sweep's context while delivering and
// records whether its own context was cancelled too.
type cancellingPublisher struct {
	cancel    context.CancelFunc
	delivered []string
	ctxErrs   []error
}

func (p *cancellingPublisher) Publish(ctx context.Context, e events.Event) error {
	p.cancel()
	p.delivered = append(p.delivered, e.StudentID)
	p.ctxErrs = append(p.ctxErrs, ctx.Err())
	return nil
}

func TestSweep_DeliverySurvivesCallerCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := NewStore(kvstore.NewMemory())
	publisher := &cancellingPublisher{cancel: cancel}
	sweeper := NewSweeper(store, publisher)

	report, err := sweeper.Sweep(ctx, testKey, []string{"S1", "S2"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled once the caller went away, got %v", err)
	}
	if len(report.Absent) != 1 || report.Absent[0] != "S1" {
		t.Fatalf("Expected only S1 swept before cancel, got %+v", report)
	}
	if len(publisher.ctxErrs) != 1 || publisher.ctxErrs[0] != nil {
		t.Errorf("Expected S1 delivered on a live context, got %v", publisher.ctxErrs)
	}

	t.Run("rerun finishes the roster", func(t *testing.T) {
		publisher.cancel = func() {}
		report, err := sweeper.Sweep(context.Background(), testKey, []string{"S1", "S2"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if report.AlreadyReported != 1 || len(report.Absent) != 1 || report.Absent[0] != "S2" {
			t.Errorf("Unexpected rerun report %+v", report)
		}
		if len(publisher.delivered) != 2 {
			t.Errorf("Expected S1 and S2 each delivered once, got %v", publisher.delivered)
		}
	})
}

func TestSweep_StoreFailureIsolated(t *testing.T) {
	ctx := context.Background()
	kv := &failingKV{Memory: kvstore.NewMemory(), failKey: testKey.reportedKey()}
	publisher := &recordingPublisher{}
	sweeper := NewSweeper(NewStore(kv), publisher)

	report, err := sweeper.Sweep(ctx, testKey, []string{"S1", "S2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.Failed) != 2 {
		t.Errorf("Expected both students to fail individually, got %+v", report)
	}
	if len(publisher.events) != 0 {
		t.Errorf("Expected no events when nothing was recorded, got %d", len(publisher.events))
	}
}

func TestSweep_InvalidKey(t *testing.T) {
	sweeper := NewSweeper(NewStore(kvstore.NewMemory()), &recordingPublisher{})
	if _, err := sweeper.Sweep(context.Background(), Key{SchoolID: "S"}, []string{"S1"}); err == nil {
		t.Error("Expected validation error")
	}
}

func TestSummary(t *testing.T) {
	ctx := context.Background()
	store := NewStore(kvstore.NewMemory())

	store.MarkPresent(ctx, testKey, "S1")
	store.MarkPresent(ctx, testKey, "S2")
	other := testKey
	other.ClassName = "7B"
	store.Override(ctx, other, map[string]bool{"S9": true, "S10": false})
	yesterday := testKey
	yesterday.Date = "2024-01-09"
	store.MarkPresent(ctx, yesterday, "S1")

	totals, err := store.Summary(ctx, "DO1", []string{"SCH1", "SCH2"}, "2024-01-10")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(totals) != 2 {
		t.Fatalf("Expected 2 school totals, got %d", len(totals))
	}
	if totals[0].Present != 3 || totals[0].Classes != 2 {
		t.Errorf("Unexpected SCH1 total %+v", totals[0])
	}
	if totals[1].Present != 0 {
		t.Errorf("Unexpected SCH2 total %+v", totals[1])
	}
}

func TestMonth(t *testing.T) {
	ctx := context.Background()
	store := NewStore(kvstore.NewMemory())
	class := Key{DirectorateID: "DO1", SchoolID: "SCH1", ClassName: "7A"}

	day := func(d int) Key {
		k := class
		k.Date = DateOf(time.Date(2024, 2, d, 0, 0, 0, 0, time.Local))
		return k
	}
	store.MarkPresent(ctx, day(1), "S1")
	store.MarkPresent(ctx, day(10), "S1")
	store.MarkPresent(ctx, day(10), "S2")

	now := time.Date(2024, 2, 10, 11, 0, 0, 0, time.Local)

	tests := []struct {
		name        string
		todayClosed bool
		wantS2Day9  string
		wantS1Day10 string
		wantS1Day11 string
		wantS1Total [2]int
	}{
		{"window open", false, "A", "P", "", [2]int{2, 8}},
		{"window closed", true, "A", "P", "", [2]int{2, 8}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			grid, err := store.Month(ctx, class, 2024, time.February, []string{"S1", "S2", "S3"}, now, tt.todayClosed)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if grid.Days != 29 {
				t.Errorf("Expected 29 days in Feb 2024, got %d", grid.Days)
			}
			s1, s2, s3 := grid.Rows[0], grid.Rows[1], grid.Rows[2]
			if s2.Days[8] != tt.wantS2Day9 || s1.Days[9] != tt.wantS1Day10 || s1.Days[10] != tt.wantS1Day11 {
				t.Errorf("Unexpected cells: s2[9]=%q s1[10]=%q s1[11]=%q", s2.Days[8], s1.Days[9], s1.Days[10])
			}
			if s1.Present != tt.wantS1Total[0] || s1.Absent != tt.wantS1Total[1] {
				t.Errorf("Unexpected S1 totals %d/%d", s1.Present, s1.Absent)
			}
			wantToday := ""
			if tt.todayClosed {
				wantToday = "A"
			}
			if s3.Days[9] != wantToday {
				t.Errorf("Expected today's cell for unmarked S3 to be %q, got %q", wantToday, s3.Days[9])
			}
		})
	}

	if _, err := store.Month(ctx, class, 2024, 13, nil, now, false); err == nil {
		t.Error("Expected error for invalid month")
	}
}
