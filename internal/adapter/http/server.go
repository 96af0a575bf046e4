package http

import (
	"net/http"

	"github.com/bnema/tunecast/internal/adapter/http/middleware"
)

type Server struct {
	mux      *http.ServeMux
	handlers *Handlers
	authSvc  AuthService
}

func NewServer(authSvc AuthService, tuneSvc TuneService, fulfillSvc FulfillService, maxSizeMB int) *Server {
	s := &Server{
		mux:      http.NewServeMux(),
		handlers: NewHandlers(tuneSvc, fulfillSvc, maxSizeMB),
		authSvc:  authSvc,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /api/login", LoginHandler(s.authSvc))
	s.mux.HandleFunc("POST /api/logout", LogoutHandler())

	s.mux.HandleFunc("GET /api/auth/google/url", AuthMiddleware(s.authSvc, GoogleURLHandler(s.authSvc)))
	s.mux.HandleFunc("GET /api/auth/google/callback", AuthMiddleware(s.authSvc, GoogleCallbackHandler(s.authSvc)))

	s.mux.HandleFunc("GET /api/tunes", AuthMiddleware(s.authSvc, s.handlers.ListTunes()))
	s.mux.HandleFunc("POST /api/tunes", AuthMiddleware(s.authSvc, s.handlers.CreateTunes()))
	s.mux.HandleFunc("GET /api/tunes/{id}", AuthMiddleware(s.authSvc, s.handlers.GetTune()))
	s.mux.HandleFunc("PUT /api/tunes/{id}", AuthMiddleware(s.authSvc, s.handlers.UpdateTune()))
	s.mux.HandleFunc("DELETE /api/tunes/{id}", AuthMiddleware(s.authSvc, s.handlers.DeleteTune()))
	s.mux.HandleFunc("POST /api/tunes/{id}/fulfill", AuthMiddleware(s.authSvc, s.handlers.FulfillTune()))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	middleware.SecurityHeaders(s.mux).ServeHTTP(w, r)
}
