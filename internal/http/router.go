package http

import (
	"net/http"

	"medbuddy/internal/config"
	"medbuddy/internal/events"
	"medbuddy/internal/http/handler"
	mw "medbuddy/internal/http/middleware"
	"medbuddy/internal/jobs"
	"medbuddy/internal/reminder"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"go.uber.org/zap"
)

type Deps struct {
	Store *reminder.Store
	Sched *jobs.Scheduler
	Hub   *events.Hub
	Calls handler.CallGateway
	Log   *zap.Logger
}

func NewRouter(cfg config.Config, d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(mw.RequestLogger(d.Log))
	r.Use(chimw.Recoverer)

	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(mw.CORS(cfg.CORSAllowedOrigins, cfg.CORSAllowCredentials))
	}

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, map[string]any{
			"message": "MedBuddy API is running",
			"endpoints": map[string]string{
				"save_reminder":        "POST /reminders",
				"get_reminders":        "GET /reminders",
				"cancel_reminder":      "POST /reminders/{id}/cancel",
				"cancel_by_medication": "POST /cancel_by_medication",
				"chat":                 "POST /api/chat",
				"trigger_call":         "POST /trigger_call",
				"test_vapi":            "GET /diagnostics/connection",
				"events":               "GET /events (websocket)",
			},
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	rh := &handler.ReminderHandler{Store: d.Store, Sched: d.Sched, Log: d.Log}
	ch := &handler.CallHandler{Calls: d.Calls, Log: d.Log}
	eh := &handler.EventsHandler{Hub: d.Hub, AllowedOrigins: cfg.CORSAllowedOrigins, Log: d.Log}

	r.Route("/reminders", func(r chi.Router) {
		r.Post("/", rh.Create)
		r.Get("/", rh.List)
		r.Delete("/{id}", rh.Delete)
		r.Put("/{id}/status", rh.SetStatus)
		r.Post("/{id}/cancel", rh.Cancel)
	})
	r.Post("/cancel_by_medication", rh.CancelByMedication)
	r.Post("/trigger_call", ch.TriggerCall)

	r.Route("/diagnostics", func(r chi.Router) {
		r.Get("/connection", ch.TestConnection)
		r.Get("/phone-numbers", ch.PhoneNumbers)
	})

	r.Get("/events", eh.Serve)

	// legacy paths still called by the voice assistant and the dashboard
	r.Route("/api", func(r chi.Router) {
		r.Post("/save_reminder", rh.Create)
		r.Post("/cancel_reminder", rh.CancelByMedication)
		r.Post("/trigger_call", ch.TriggerCall)
		r.Post("/chat", rh.Chat)
		r.Post("/say_reminder", ch.SayReminder)
	})
	r.Get("/test-vapi", ch.TestConnection)
	r.Get("/phone-numbers", ch.PhoneNumbers)
	r.Get("/ws", eh.Serve)

	return r
}
