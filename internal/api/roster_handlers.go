package api

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kdimtricp/rollcall/internal/roster"
	"github.com/kdimtricp/rollcall/internal/windows"
)

type studentRequest struct {
	SchoolID string          `json:"schoolId"`
	Student  *roster.Student `json:"student"`
}

func (app *App) EnrollStudentHandler(w http.ResponseWriter, r *http.Request) {
	var req studentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}
	if req.Student == nil || req.SchoolID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "Missing student or schoolId")
		return
	}

	if err := app.Roster.Enroll(r.Context(), req.SchoolID, *req.Student); err != nil {
		app.fail(w, r, err)
		return
	}

	log.Printf("[API] new student %s (%s) for school %s", req.Student.Roll, req.Student.Name, req.SchoolID)
	app.refreshReferences(r.Context(), req.SchoolID)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (app *App) UpdateStudentHandler(w http.ResponseWriter, r *http.Request) {
	var req studentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}
	if req.Student == nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Missing student")
		return
	}

	schoolID, err := app.Roster.Update(r.Context(), req.SchoolID, *req.Student)
	if err != nil {
		app.fail(w, r, err)
		return
	}

	log.Printf("[API] updated student %s for school %s", req.Student.Roll, schoolID)
	app.refreshReferences(r.Context(), schoolID)
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "schoolId": schoolID})
}

// ListStudentsHandler returns the school roster without face images.
func (app *App) ListStudentsHandler(w http.ResponseWriter, r *http.Request) {
	schoolID := chi.URLParam(r, "school")
	className := r.URL.Query().Get("class")

	students, err := app.Roster.ClassRoster(r.Context(), schoolID, className)
	if err != nil {
		app.fail(w, r, err)
		return
	}

	out := make([]roster.Student, len(students))
	for i, s := range students {
		out[i] = s.Redacted()
	}
	writeJSON(w, http.StatusOK, out)
}

func (app *App) ListSchoolsHandler(w http.ResponseWriter, r *http.Request) {
	var (
		schools []roster.School
		err     error
	)
	if doID := r.URL.Query().Get("do"); doID != "" {
		schools, err = app.Roster.SchoolsForDirectorate(r.Context(), doID)
	} else {
		schools, err = app.Roster.Schools(r.Context())
	}
	if err != nil {
		app.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, schools)
}

func (app *App) SaveSchoolHandler(w http.ResponseWriter, r *http.Request) {
	var school roster.School
	if err := decodeJSON(w, r, &school); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}

	if err := app.Roster.SaveSchool(r.Context(), school); err != nil {
		app.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (app *App) GetWindowHandler(w http.ResponseWriter, r *http.Request) {
	win, err := app.Windows.Get(r.Context(), chi.URLParam(r, "school"))
	if err != nil {
		app.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, win)
}

func (app *App) SetWindowHandler(w http.ResponseWriter, r *http.Request) {
	var win windows.Window
	if err := decodeJSON(w, r, &win); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}
	if err := win.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_window", err.Error())
		return
	}

	schoolID := chi.URLParam(r, "school")
	if err := app.Windows.Set(r.Context(), schoolID, win); err != nil {
		app.fail(w, r, err)
		return
	}

	log.Printf("[API] attendance window for %s set to %s-%s", schoolID, win.Start, win.End)
	writeJSON(w, http.StatusOK, win)
}
