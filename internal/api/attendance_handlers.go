package api

import (
	"log"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kdimtricp/rollcall/internal/attendance"
	"github.com/kdimtricp/rollcall/internal/events"
	"github.com/kdimtricp/rollcall/internal/roster"
)

type relayEventRequest struct {
	Event *events.Event `json:"event"`
}

// RelayEventHandler accepts events from another rollcall instance configured
// with this server as its relay_url.
func (app *App) RelayEventHandler(w http.ResponseWriter, r *http.Request) {
	var req relayEventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}
	if req.Event == nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Missing event")
		return
	}

	e := req.Event
	log.Printf("[RELAY] %s %s/%s %s %s student=%s id=%s",
		e.Status, e.DirectorateID, e.SchoolID, e.Date, e.ClassName, e.StudentID, e.ID)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func classKey(r *http.Request) (attendance.Key, error) {
	key := attendance.Key{
		DirectorateID: chi.URLParam(r, "do"),
		SchoolID:      chi.URLParam(r, "school"),
		Date:          chi.URLParam(r, "date"),
		ClassName:     chi.URLParam(r, "class"),
	}
	return key, key.Validate()
}

type presentResponse struct {
	Key     attendance.Key `json:"key"`
	Present []string       `json:"present"`
}

func (app *App) GetAttendanceHandler(w http.ResponseWriter, r *http.Request) {
	key, err := classKey(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_key", err.Error())
		return
	}

	set, err := app.Attendance.Present(r.Context(), key)
	if err != nil {
		app.fail(w, r, err)
		return
	}

	present := make([]string, 0, len(set))
	for id, ok := range set {
		if ok {
			present = append(present, id)
		}
	}
	sort.Strings(present)
	writeJSON(w, http.StatusOK, presentResponse{Key: key, Present: present})
}

type overrideRequest struct {
	Present map[string]bool `json:"present"`
}

// OverrideAttendanceHandler replaces the whole present record of a class.
func (app *App) OverrideAttendanceHandler(w http.ResponseWriter, r *http.Request) {
	key, err := classKey(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_key", err.Error())
		return
	}

	var req overrideRequest
	if err := decodeJSON(w, r, &req); err != nil || req.Present == nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Missing present map")
		return
	}

	if err := app.Attendance.Override(r.Context(), key, req.Present); err != nil {
		app.fail(w, r, err)
		return
	}

	log.Printf("[API] attendance override for %s (%d entries)", key, len(req.Present))
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func rosterIDs(students []roster.Student) []string {
	ids := make([]string, len(students))
	for i, s := range students {
		ids[i] = s.Roll
	}
	return ids
}

// SweepHandler runs the absentee sweep for a class. It is refused while the
// school's window is still open for that date unless force=true.
func (app *App) SweepHandler(w http.ResponseWriter, r *http.Request) {
	key, err := classKey(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_key", err.Error())
		return
	}

	now := app.now()
	if force, _ := strconv.ParseBool(r.URL.Query().Get("force")); !force {
		today := attendance.DateOf(now)
		if key.Date > today {
			writeError(w, http.StatusConflict, "window_open", "attendance for "+key.Date+" has not been taken yet")
			return
		}
		if key.Date == today {
			win, err := app.Windows.Get(r.Context(), key.SchoolID)
			if err != nil {
				app.fail(w, r, err)
				return
			}
			if !win.Closed(now) {
				writeError(w, http.StatusConflict, "window_open", "attendance window is open until "+win.End)
				return
			}
		}
	}

	students, err := app.Roster.ClassRoster(r.Context(), key.SchoolID, key.ClassName)
	if err != nil {
		app.fail(w, r, err)
		return
	}

	report, err := app.Sweeper.Sweep(r.Context(), key, rosterIDs(students))
	if err != nil {
		app.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// RegisterHandler returns the monthly P/A grid of a class.
func (app *App) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	now := app.now()
	class := attendance.Key{
		DirectorateID: chi.URLParam(r, "do"),
		SchoolID:      chi.URLParam(r, "school"),
		ClassName:     chi.URLParam(r, "class"),
	}

	year, month := now.Year(), int(now.Month())
	q := r.URL.Query()
	if v := q.Get("year"); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "Invalid year")
			return
		}
		year = y
	}
	if v := q.Get("month"); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "Invalid month")
			return
		}
		month = m
	}

	if err := (attendance.Key{DirectorateID: class.DirectorateID, SchoolID: class.SchoolID, ClassName: class.ClassName, Date: attendance.DateOf(now)}).Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_key", err.Error())
		return
	}
	if month < 1 || month > 12 {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid month")
		return
	}

	win, err := app.Windows.Get(r.Context(), class.SchoolID)
	if err != nil {
		app.fail(w, r, err)
		return
	}
	students, err := app.Roster.ClassRoster(r.Context(), class.SchoolID, class.ClassName)
	if err != nil {
		app.fail(w, r, err)
		return
	}

	grid, err := app.Attendance.Month(r.Context(), class, year, time.Month(month), rosterIDs(students), now, win.Closed(now))
	if err != nil {
		app.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, grid)
}

type schoolSummary struct {
	attendance.SchoolTotal
	Name     string `json:"name"`
	District string `json:"district"`
}

type summaryResponse struct {
	DirectorateID string          `json:"directorateId"`
	Date          string          `json:"date"`
	Present       int             `json:"present"`
	Schools       []schoolSummary `json:"schools"`
}

// SummaryHandler totals present marks per school of a directorate office.
func (app *App) SummaryHandler(w http.ResponseWriter, r *http.Request) {
	doID := chi.URLParam(r, "do")
	date := r.URL.Query().Get("date")
	if date == "" {
		date = attendance.DateOf(app.now())
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid date")
		return
	}

	schools, err := app.Roster.SchoolsForDirectorate(r.Context(), doID)
	if err != nil {
		app.fail(w, r, err)
		return
	}
	ids := make([]string, len(schools))
	for i, s := range schools {
		ids[i] = s.SchoolID
	}

	totals, err := app.Attendance.Summary(r.Context(), doID, ids, date)
	if err != nil {
		app.fail(w, r, err)
		return
	}

	resp := summaryResponse{DirectorateID: doID, Date: date, Schools: make([]schoolSummary, len(totals))}
	for i, t := range totals {
		resp.Schools[i] = schoolSummary{SchoolTotal: t, Name: schools[i].Name, District: schools[i].District}
		resp.Present += t.Present
	}
	writeJSON(w, http.StatusOK, resp)
}
