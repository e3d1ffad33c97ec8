package worker

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"treasury/src/app"
	"treasury/src/worker/controllers"
	"treasury/src/worker/handlers"
)

type Server struct {
	Router     *chi.Mux
	Handler    *handlers.Handler
	Controller *controllers.Controller
}

func NewServer(deps *app.Dependencies) *Server {
	controller := controllers.NewController(deps.Warmup, deps.Entities, deps.Logger)
	server := &Server{
		Router:     chi.NewRouter(),
		Handler:    handlers.NewHandler(controller),
		Controller: controller,
	}
	server.InitRoutes()
	return server
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

func (s *Server) InitRoutes() {
	s.Router.Use(middleware.RequestID)
	s.Router.Use(middleware.Recoverer)

	s.Router.Get("/alive", handlers.Healthcheck)
	s.Router.Route("/api/sync", func(r chi.Router) {
		r.Post("/warmup", s.Handler.RunWarmup)
		r.Post("/entities/{slug}", s.Handler.SyncEntity)
	})
}

func NewHTTPServer(server *Server, port string) *http.Server {
	return &http.Server{
		Addr:         ":" + port,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 90 * time.Second,
		Handler:      server,
	}
}
