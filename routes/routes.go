package routes

import (
	"net/http"
	"time"

	"github.com/Dosada05/tournament-engine/handlers"
	"github.com/Dosada05/tournament-engine/middleware"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Options struct {
	JWTSecret      []byte
	AllowedOrigins []string
	Gatherer       prometheus.Gatherer
}

type Handlers struct {
	Tournament *handlers.TournamentHandler
	Battle     *handlers.BattleHandler
	Admin      *handlers.AdminHandler
	WebSocket  *handlers.WebSocketHandler
}

func SetupRoutes(router chi.Router, h Handlers, opts Options) {
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if opts.Gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	// Websocket connections are long-lived and must not hit the request timeout.
	router.Get("/ws/tournaments/{tournamentID}", h.WebSocket.ServeWs)

	router.Group(func(r chi.Router) {
		r.Use(chiMiddleware.Timeout(30 * time.Second))

		r.Get("/tournaments/{tournamentID}/bracket", h.Tournament.GetBracketHandler)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(opts.JWTSecret))

			r.Patch("/battles/{battleID}", h.Battle.ReportResultHandler)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(middleware.RoleAdmin))

				r.Post("/tournaments/{tournamentID}/qualification/close", h.Admin.CloseQualificationHandler)
				r.Post("/tournaments/{tournamentID}/advance", h.Admin.AdvanceHandler)
				r.Post("/tournaments/{tournamentID}/finalize", h.Tournament.FinalizeHandler)
				r.Post("/tournaments/{tournamentID}/rounds", h.Tournament.CreateRoundHandler)
			})
		})
	})
}
