package attendance

import (
	"context"
	"fmt"
	"time"
)

type MonthRow struct {
	StudentID string   `json:"studentId"`
	Days      []string `json:"days"`
	Present   int      `json:"present"`
	Absent    int      `json:"absent"`
}

// MonthGrid is the register view of one class for a calendar month. Cells
// are "P", "A" or "" for days still open.
type MonthGrid struct {
	Year  int        `json:"year"`
	Month int        `json:"month"`
	Days  int        `json:"days"`
	Rows  []MonthRow `json:"rows"`
}

// Month derives the register from present sets. Past days without a mark
// count as absent; today counts as absent only once todayClosed is true;
// future days are blank.
func (s *Store) Month(ctx context.Context, class Key, year int, month time.Month, roster []string, now time.Time, todayClosed bool) (*MonthGrid, error) {
	if month < time.January || month > time.December {
		return nil, fmt.Errorf("invalid month %d", month)
	}

	first := time.Date(year, month, 1, 0, 0, 0, 0, now.Location())
	days := first.AddDate(0, 1, -1).Day()
	today := DateOf(now)

	grid := &MonthGrid{Year: year, Month: int(month), Days: days, Rows: make([]MonthRow, len(roster))}
	for i, id := range roster {
		grid.Rows[i] = MonthRow{StudentID: id, Days: make([]string, days)}
	}

	for d := 0; d < days; d++ {
		key := class
		key.Date = DateOf(first.AddDate(0, 0, d))
		if err := key.Validate(); err != nil {
			return nil, err
		}

		present, err := s.Present(ctx, key)
		if err != nil {
			return nil, err
		}

		for i := range grid.Rows {
			row := &grid.Rows[i]
			switch {
			case present[row.StudentID]:
				row.Days[d] = "P"
				row.Present++
			case key.Date < today, key.Date == today && todayClosed:
				row.Days[d] = "A"
				row.Absent++
			}
		}
	}

	return grid, nil
}
