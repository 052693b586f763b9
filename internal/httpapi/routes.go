package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/DoyleJ11/olympics-backend/internal/auth"
	"github.com/DoyleJ11/olympics-backend/internal/ws"
)

type RouteOptions struct {
	Verifier *auth.Verifier
	WS       ws.Options
}

func SetupRoutes(a *API, opts RouteOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(a.Log))

	// Public routes
	r.Get("/healthz", Healthz)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(opts.Verifier, a.Log.Named("auth")))

		r.Get("/ws", ws.Handler(a.Hub, a.Log, opts.WS))

		r.Route("/rooms", func(r chi.Router) {
			r.Get("/", a.ListRooms)
			r.Post("/", a.CreateRoom)

			r.Route("/{roomID}", func(r chi.Router) {
				r.Get("/", a.GetRoom)
				r.Get("/members", a.ListMembers)
				r.Post("/join", a.JoinRoom)
				r.Post("/leave", a.LeaveRoom)
				r.Post("/start", a.StartGame)
				r.Post("/finish", a.FinishGame)
				r.Post("/challenges/reset", a.ResetChallenges)
				r.Post("/challenges/reseed", a.ReseedChallenges)
				r.Get("/session", a.GetSession)
				r.Post("/session/commands", a.SessionCommand)
			})
		})
	})
	return r
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	log = log.Named("http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("took", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}
