package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"treasury/src/api/controllers"
	"treasury/src/api/handlers"
	"treasury/src/app"
)

type Server struct {
	Router  *chi.Mux
	Handler *handlers.Handler
	origins []string
}

func NewServer(deps *app.Dependencies) *Server {
	controller := controllers.NewController(deps.Prices, deps.Aggregates, deps.Summary, deps.Entities)
	server := &Server{
		Router:  chi.NewRouter(),
		Handler: handlers.NewHandler(controller, deps.Logger),
		origins: deps.Config.Service.AllowedOrigins,
	}
	server.InitRoutes()
	return server
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

func (s *Server) InitRoutes() {
	s.Router.Use(middleware.RequestID)
	s.Router.Use(middleware.RealIP)
	s.Router.Use(middleware.Recoverer)
	s.Router.Use(cors.New(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}).Handler)

	s.Router.Get("/alive", handlers.Healthcheck)

	s.Router.Route("/api/bitcoin", func(r chi.Router) {
		r.Get("/prices", s.Handler.GetPriceHistory)
		r.Get("/prices/{id}", s.Handler.GetSpotPrice)
		r.Get("/aggregate", s.Handler.GetAggregateHoldings)
		r.Get("/summary", s.Handler.GetSummary)
	})

	s.Router.Route("/api/entities", func(r chi.Router) {
		r.Get("/", s.Handler.GetEntities)
		r.Get("/{slug}/balance-sheet", s.Handler.GetEntityBalanceSheet)
		r.Get("/{slug}/timeseries", s.Handler.GetEntityTimeSeries)
	})

	s.Router.Route("/api/admin/entities", func(r chi.Router) {
		r.Get("/", s.Handler.GetAdminEntities)
		r.Post("/", s.Handler.CreateEntity)
		r.Put("/{slug}", s.Handler.UpdateEntity)
		r.Post("/{slug}/sync", s.Handler.SyncEntity)
	})
}

func NewHTTPServer(server *Server, port string) *http.Server {
	return &http.Server{
		Addr:         ":" + port,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		Handler:      server,
	}
}
