// Package server is the reference implementation of the /auth/* contract the
// session SDK consumes: JSON login, registration, cookie-backed silent
// refresh, and best-effort logout.
package server

import (
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/mymanybooks/go-auth/internal/config"
	"github.com/mymanybooks/go-auth/token/issuer"
	"github.com/mymanybooks/go-auth/token/refresh"
	"github.com/mymanybooks/go-auth/users"
)

type Server struct {
	env    string // Environment (e.g., "DEV", "PROD")
	mux    *http.ServeMux
	routes []string
	config config.Config
	logger zerolog.Logger

	users   users.Repo
	issuer  *issuer.Issuer
	refresh *refresh.Manager
}

func New(cfg config.Config, userRepo users.Repo, tokenIssuer *issuer.Issuer, refreshManager *refresh.Manager, logger zerolog.Logger) (*Server, error) {
	if userRepo == nil {
		return nil, fmt.Errorf("[server.New] user repo is required")
	}
	if tokenIssuer == nil {
		return nil, fmt.Errorf("[server.New] token issuer is required")
	}
	if refreshManager == nil {
		return nil, fmt.Errorf("[server.New] refresh manager is required")
	}

	s := &Server{
		mux:     http.NewServeMux(),
		config:  cfg,
		logger:  logger,
		users:   userRepo,
		issuer:  tokenIssuer,
		refresh: refreshManager,
	}
	s.env = cfg.GetEnv()

	s.initRoutes()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) initRoutes() {
	mw := s.APIMiddleware()
	s.RegisterRouteFunc("POST "+RouteAuthLogin, ChainMiddleware(s.LoginHandler(), mw...))
	s.RegisterRouteFunc("POST "+RouteAuthRegister, ChainMiddleware(s.RegisterHandler(), mw...))
	s.RegisterRouteFunc("POST "+RouteAuthRefresh, ChainMiddleware(s.RefreshHandler(), mw...))
	s.RegisterRouteFunc("POST "+RouteAuthLogout, ChainMiddleware(s.LogoutHandler(), mw...))
	s.RegisterRouteFunc("OPTIONS /auth/", ChainMiddleware(s.PreflightHandler(), mw...))
}
