package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"path"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kdimtricp/rollcall/internal/attendance"
	"github.com/kdimtricp/rollcall/internal/faceindex"
	"github.com/kdimtricp/rollcall/internal/roster"
	"github.com/kdimtricp/rollcall/internal/session"
)

type warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type sessionResponse struct {
	Status  session.Status `json:"status"`
	Warning *warning       `json:"warning,omitempty"`
}

func (app *App) currentSession() sessionResponse {
	st := app.Session.Status()
	resp := sessionResponse{Status: st}
	if st.Warning == faceindex.ErrNoReferences.Error() {
		resp.Warning = &warning{Code: "no_reference_faces", Message: st.Warning}
	}
	return resp
}

func (app *App) SessionStatusHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, app.currentSession())
}

func (app *App) StartCameraHandler(w http.ResponseWriter, r *http.Request) {
	if err := app.Session.StartCamera(r.Context()); err != nil {
		app.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, app.currentSession())
}

func (app *App) StopCameraHandler(w http.ResponseWriter, r *http.Request) {
	if err := app.Session.StopCamera(); err != nil {
		log.Printf("[API] camera stop reported: %v", err)
	}
	writeJSON(w, http.StatusOK, app.currentSession())
}

type detectionRequest struct {
	DirectorateID string `json:"directorateId"`
	SchoolID      string `json:"schoolId"`
	ClassName     string `json:"className"`
	UseWindow     *bool  `json:"useWindow"`
}

// StartDetectionHandler starts the match loop for a class. Fields left out of
// the body fall back to the configured kiosk defaults.
func (app *App) StartDetectionHandler(w http.ResponseWriter, r *http.Request) {
	var req detectionRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
			return
		}
	}

	target := session.Target{
		DirectorateID: firstNonEmpty(req.DirectorateID, app.Defaults.DirectorateID),
		SchoolID:      firstNonEmpty(req.SchoolID, app.Defaults.SchoolID),
		ClassName:     firstNonEmpty(req.ClassName, app.Defaults.ClassName),
	}
	useWindow := app.Defaults.UseWindow
	if req.UseWindow != nil {
		useWindow = *req.UseWindow
	}

	key := attendance.Key{
		DirectorateID: target.DirectorateID,
		SchoolID:      target.SchoolID,
		ClassName:     target.ClassName,
		Date:          attendance.DateOf(app.now()),
	}
	if err := key.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_target", err.Error())
		return
	}

	if useWindow {
		win, err := app.Windows.Get(r.Context(), target.SchoolID)
		if err != nil {
			app.fail(w, r, err)
			return
		}
		target.Window = &win
	}

	students, err := app.Roster.ClassRoster(r.Context(), target.SchoolID, target.ClassName)
	if err != nil {
		app.fail(w, r, err)
		return
	}
	if err := app.Session.StartDetection(r.Context(), target, enrolled(students)); err != nil {
		app.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, app.currentSession())
}

// refreshReferences re-indexes the running session after a roster write in
// schoolID. Failures are logged; the write itself already succeeded.
func (app *App) refreshReferences(ctx context.Context, schoolID string) {
	target, ok := app.Session.ActiveTarget()
	if !ok || target.SchoolID != schoolID {
		return
	}
	students, err := app.Roster.ClassRoster(ctx, schoolID, target.ClassName)
	if err != nil {
		log.Printf("[API] roster reload for %s/%s failed: %v", schoolID, target.ClassName, err)
		return
	}
	app.Session.ReloadReferences(schoolID, target.ClassName, enrolled(students))
}

func enrolled(students []roster.Student) []faceindex.Enrolled {
	references := make([]faceindex.Enrolled, len(students))
	for i, s := range students {
		references[i] = s
	}
	return references
}

func (app *App) StopDetectionHandler(w http.ResponseWriter, r *http.Request) {
	app.Session.StopDetection()
	writeJSON(w, http.StatusOK, app.currentSession())
}

// TickHandler runs one match pass immediately, outside the loop's schedule.
func (app *App) TickHandler(w http.ResponseWriter, r *http.Request) {
	result, err := app.Session.Tick(r.Context())
	if err != nil {
		app.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (app *App) SessionStreamHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	updates, unsubscribe := app.Session.Subscribe()
	defer unsubscribe()

	send := func(update session.Update) {
		data, err := json.Marshal(update.Data)
		if err != nil {
			log.Printf("[API] Error marshaling update: %v", err)
			return
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", update.Type, string(data))
		flusher.Flush()
	}

	send(session.Update{Type: session.UpdateState, Data: app.Session.Status()})

	clientGone := r.Context().Done()

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return
			}
			send(update)

		case <-clientGone:
			return
		}
	}
}

func (app *App) SnapshotHandler(w http.ResponseWriter, r *http.Request) {
	if app.Snapshots == nil {
		http.NotFound(w, r)
		return
	}

	name := chi.URLParam(r, "*")
	file, err := app.Snapshots.OpenFile(name)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer file.Close()

	w.Header().Set("Content-Type", "image/jpeg")
	http.ServeContent(w, r, path.Base(name), time.Time{}, file)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
