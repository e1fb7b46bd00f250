package attendance

import (
	"context"
	"log"

	"github.com/kdimtricp/rollcall/internal/events"
)

type Sweeper struct {
	store     *Store
	publisher events.Publisher
}

func NewSweeper(store *Store, publisher events.Publisher) *Sweeper {
	return &Sweeper{store: store, publisher: publisher}
}

type SweepReport struct {
	Key             Key      `json:"key"`
	Absent          []string `json:"absent"`
	AlreadyPresent  int      `json:"alreadyPresent"`
	AlreadyReported int      `json:"alreadyReported"`
	Failed          []string `json:"failed,omitempty"`
}

// Sweep reports every roster member missing from the present set as absent.
// Reported students are remembered under absent:<...> so running the sweep
// again emits nothing new. A failure for one student does not stop the rest.
func (s *Sweeper) Sweep(ctx context.Context, key Key, roster []string) (*SweepReport, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	report := &SweepReport{Key: key, Absent: []string{}}

	for _, studentID := range roster {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		outcome, err := s.store.markAbsent(ctx, key, studentID)
		if err != nil {
			log.Printf("[SWEEP] %s: failed to record absence of %s: %v", key, studentID, err)
			report.Failed = append(report.Failed, studentID)
			continue
		}
		switch outcome {
		case outcomePresent:
			report.AlreadyPresent++
			continue
		case outcomeAlreadyReported:
			report.AlreadyReported++
			continue
		}

		report.Absent = append(report.Absent, studentID)
		log.Printf("[SWEEP] %s absent for %s", studentID, key)

		event := events.New(key.DirectorateID, key.SchoolID, key.Date, key.ClassName, studentID, events.StatusAbsent)
		// The absence is already recorded, so delivery outlives the caller.
		if err := s.publisher.Publish(context.WithoutCancel(ctx), event); err != nil {
			log.Printf("[SWEEP] Delivery failed for %s: %v", studentID, err)
		}
	}

	return report, nil
}
