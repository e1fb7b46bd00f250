package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(app *App) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/ping", app.PingHandler)

		r.Post("/students", app.EnrollStudentHandler)
		r.Put("/students", app.UpdateStudentHandler)

		r.Get("/schools", app.ListSchoolsHandler)
		r.Post("/schools", app.SaveSchoolHandler)
		r.Get("/schools/{school}/students", app.ListStudentsHandler)
		r.Get("/schools/{school}/window", app.GetWindowHandler)
		r.Put("/schools/{school}/window", app.SetWindowHandler)

		r.Post("/attendance", app.RelayEventHandler)
		r.Get("/attendance/{do}/{school}/{date}/{class}", app.GetAttendanceHandler)
		r.Put("/attendance/{do}/{school}/{date}/{class}", app.OverrideAttendanceHandler)
		r.Post("/attendance/{do}/{school}/{date}/{class}/sweep", app.SweepHandler)
		r.Get("/register/{do}/{school}/{class}", app.RegisterHandler)
		r.Get("/do/{do}/summary", app.SummaryHandler)

		r.Route("/session", func(r chi.Router) {
			r.Get("/", app.SessionStatusHandler)
			r.Post("/camera", app.StartCameraHandler)
			r.Delete("/camera", app.StopCameraHandler)
			r.Post("/detection", app.StartDetectionHandler)
			r.Delete("/detection", app.StopDetectionHandler)
			r.Post("/tick", app.TickHandler)
			r.Get("/stream", app.SessionStreamHandler)
		})

		r.Get("/snapshots/*", app.SnapshotHandler)
	})

	return r
}
