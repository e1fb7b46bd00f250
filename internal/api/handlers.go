package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/kdimtricp/rollcall/internal/attendance"
	"github.com/kdimtricp/rollcall/internal/camera"
	"github.com/kdimtricp/rollcall/internal/config"
	"github.com/kdimtricp/rollcall/internal/detect"
	"github.com/kdimtricp/rollcall/internal/fingerprint"
	"github.com/kdimtricp/rollcall/internal/roster"
	"github.com/kdimtricp/rollcall/internal/session"
	"github.com/kdimtricp/rollcall/internal/storage"
	"github.com/kdimtricp/rollcall/internal/windows"
)

// maxBodySize leaves room for a base64 face image in enrollment requests.
const maxBodySize = 8 << 20

type App struct {
	Roster      *roster.Repository
	Attendance  *attendance.Store
	Sweeper     *attendance.Sweeper
	Windows     *windows.Store
	Session     *session.Service
	Snapshots   storage.Storage
	Defaults    config.Session
	PingMessage string
	Now         func() time.Time
}

func (app *App) now() time.Time {
	if app.Now != nil {
		return app.Now()
	}
	return time.Now()
}

type errorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[API] Failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{OK: false, Error: message, Code: code})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	return json.NewDecoder(r.Body).Decode(v)
}

// errorStatus maps domain errors onto an HTTP status and a stable code the
// kiosk UI can switch on.
func errorStatus(err error) (int, string) {
	var validationErr *roster.ValidationError
	var decodeErr *fingerprint.ImageDecodeError

	switch {
	case errors.Is(err, camera.ErrUnavailable):
		return http.StatusServiceUnavailable, "camera_unavailable"
	case errors.Is(err, detect.ErrUnavailable):
		return http.StatusServiceUnavailable, "detection_unavailable"
	case errors.Is(err, session.ErrNotStreaming),
		errors.Is(err, session.ErrAlreadyDetecting),
		errors.Is(err, session.ErrNotDetecting):
		return http.StatusConflict, "session_state"
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, "validation_failed"
	case errors.As(err, &decodeErr),
		errors.Is(err, roster.ErrMissingFace),
		errors.Is(err, roster.ErrFaceTooSmall):
		return http.StatusBadRequest, "invalid_face"
	case errors.Is(err, roster.ErrDuplicateRoll):
		return http.StatusConflict, "duplicate_roll"
	case errors.Is(err, roster.ErrNotFound):
		return http.StatusNotFound, "not_found"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (app *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorStatus(err)
	if status == http.StatusInternalServerError {
		log.Printf("[API] %s %s failed: %v", r.Method, r.URL.Path, err)
	}
	writeError(w, status, code, err.Error())
}

func (app *App) PingHandler(w http.ResponseWriter, r *http.Request) {
	msg := app.PingMessage
	if msg == "" {
		msg = "ping"
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}
