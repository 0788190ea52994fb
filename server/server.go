package server

import (
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"github.com/emberlink/go-identity-broker/broker"
	"github.com/emberlink/go-identity-broker/internal/config"
	"github.com/emberlink/go-identity-broker/token/keys"
)

type Server struct {
	env     string // Environment (e.g., "development", "production")
	mux     *http.ServeMux
	routes  []string
	config  config.Config
	broker  *broker.Service
	keys    *keys.Manager
	baseURL string
}

func New(config config.Config, brokerService *broker.Service, keyManager *keys.Manager) (*Server, error) {
	if brokerService == nil {
		return nil, errors.New("[Server New] broker service is required")
	}
	if keyManager == nil {
		return nil, errors.New("[Server New] key manager is required")
	}

	s := &Server{
		mux:     http.NewServeMux(),
		config:  config,
		broker:  brokerService,
		keys:    keyManager,
		baseURL: strings.TrimSuffix(config.GetBaseURL(), "/"),
	}
	s.env = config.GetEnv()

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	var displayMethod string
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		displayMethod = color + paddedMethod + ResetColor
	} else {
		displayMethod = Gray + paddedMethod + ResetColor
	}
	log.Printf("[%-19s] %s\n", displayMethod, path)
}
