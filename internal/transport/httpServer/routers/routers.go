package routers

import (
	"log/slog"
	"net/http"

	"eventsCatalog/internal/config"
	"eventsCatalog/internal/transport/httpServer/handlers"
	myMiddleware "eventsCatalog/internal/transport/httpServer/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type Router struct {
	log           *slog.Logger
	cfg           config.HttpServerConfig
	eventHandler  *handlers.EventHandler
	scrapeHandler *handlers.ScrapeHandler
	ticketHandler *handlers.TicketHandler
	metrics       http.Handler
}

func NewRouter(
	log *slog.Logger,
	cfg config.HttpServerConfig,
	eventHandler *handlers.EventHandler,
	scrapeHandler *handlers.ScrapeHandler,
	ticketHandler *handlers.TicketHandler,
	metrics http.Handler,
) *Router {
	return &Router{
		log:           log,
		cfg:           cfg,
		eventHandler:  eventHandler,
		scrapeHandler: scrapeHandler,
		ticketHandler: ticketHandler,
		metrics:       metrics,
	}
}

func (r *Router) Mount(mux *chi.Mux) {

	mux.Use(middleware.RequestID)
	mux.Use(middleware.Recoverer)
	mux.Use(cors.AllowAll().Handler)
	mux.Use(myMiddleware.LoggerMiddleware(r.log))
	mux.Use(middleware.Heartbeat("/ping"))

	if r.metrics != nil {
		mux.Method(http.MethodGet, "/metrics", r.metrics)
	}

	mux.Route("/api", func(mux chi.Router) {
		mux.Route("/v1", func(mux chi.Router) {
			mux.Get("/events", r.eventHandler.GetEvents)
			mux.Post("/tickets", r.ticketHandler.CreateLead)

			mux.Group(func(mux chi.Router) {
				mux.Use(myMiddleware.CronSecret(r.cfg.CronSecret))
				mux.Get("/scrape", r.scrapeHandler.Trigger)
				mux.Post("/scrape", r.scrapeHandler.Trigger)
			})

			mux.Route("/admin", func(mux chi.Router) {
				mux.Use(myMiddleware.JWTAuth(r.cfg.Secret))
				mux.Get("/export.xlsx", r.eventHandler.ExportXLSX)
				mux.Post("/import", r.eventHandler.ImportEvent)
				mux.Route("/events", func(mux chi.Router) {
					mux.Get("/", r.eventHandler.AdminGetEvents)
					mux.Patch("/{eventId}", r.eventHandler.UpdateStatus)
					mux.Delete("/{eventId}", r.eventHandler.ArchiveEvent)
					mux.Post("/{eventId}/import", r.eventHandler.ImportEvent)
				})
			})
		})
	})
}

// Handler returns a fresh mux with every route mounted.
func (r *Router) Handler() http.Handler {
	mux := chi.NewRouter()
	r.Mount(mux)
	return mux
}
