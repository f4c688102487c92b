package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/brewgator/lightning-rest/internal/clightning"
	"github.com/brewgator/lightning-rest/internal/db"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	log "github.com/sirupsen/logrus"
)

const (
	// DefaultReadTimeout bounds reading a request, including multipart bodies
	DefaultReadTimeout = 15 * time.Second
	// DefaultWriteTimeout must outlast the node's RPC timeout
	DefaultWriteTimeout = 60 * time.Second
)

// Server maps the REST routes onto a lightning node
type Server struct {
	node           clightning.Node
	journal        *db.Database
	router         *mux.Router
	limiter        *clientLimiter
	allowedOrigins []string
	readTimeout    time.Duration
	writeTimeout   time.Duration

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
}

type Option func(*Server)

// WithJournal records every proxied call in the given database
func WithJournal(journal *db.Database) Option {
	return func(s *Server) {
		s.journal = journal
	}
}

// WithRateLimit limits each client address to rps requests per second.
// A non-positive rps leaves the gateway unlimited.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Server) {
		if rps > 0 {
			s.limiter = newClientLimiter(rps, burst)
		}
	}
}

// WithAllowedOrigins restricts CORS to the given origins. Without it every
// origin is allowed.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

// WithTimeouts overrides the HTTP server read and write timeouts
func WithTimeouts(read, write time.Duration) Option {
	return func(s *Server) {
		if read > 0 {
			s.readTimeout = read
		}
		if write > 0 {
			s.writeTimeout = write
		}
	}
}

// NewServer creates a gateway in front of node
func NewServer(node clightning.Node, opts ...Option) *Server {
	s := &Server{
		node:         node,
		router:       mux.NewRouter(),
		readTimeout:  DefaultReadTimeout,
		writeTimeout: DefaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.NotFoundHandler = http.HandlerFunc(s.handleNotFound)
	s.router.MethodNotAllowedHandler = http.HandlerFunc(s.handleMethodNotAllowed)
	s.router.Use(loggingMiddleware("gateway"))
	if s.limiter != nil {
		s.router.Use(s.limiter.middleware)
	}

	// Node utility endpoints
	utility := s.router.PathPrefix("/utility").Subrouter()
	utility.HandleFunc("/getinfo", s.handleGetInfo).Methods("GET")
	utility.HandleFunc("/health", s.handleHealth).Methods("GET")
	utility.HandleFunc("/calls", s.handleCalls).Methods("GET")
	utility.HandleFunc("/calls/stats", s.handleCallStats).Methods("GET")

	// Invoice endpoints
	payment := s.router.PathPrefix("/payment").Subrouter()
	payment.HandleFunc("/listinvoice", s.handleListInvoice).Methods("GET")
	payment.HandleFunc("/decodepay", s.handleDecodePay).Methods("POST")
	payment.HandleFunc("/invoice", s.handleInvoice).Methods("POST")
	payment.HandleFunc("/delInvoice", s.handleDelInvoice).Methods("POST")
}

// Handler returns the router wrapped in CORS handling
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: s.allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(s.router)
}

// Start listens on addr and serves in the background until Shutdown
func (s *Server) Start(addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.httpServer != nil {
		return ErrAlreadyStarted
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.readTimeout,
		WriteTimeout: s.writeTimeout,
	}
	s.httpServer = srv
	s.listener = listener

	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("[gateway] server stopped: %v", err)
		}
	}()

	log.Infof("[gateway] listening on http://%s", listener.Addr())
	return nil
}

// Addr returns the bound listen address, or "" when stopped
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown stops accepting requests and waits for in-flight ones. The server
// can be started again afterwards.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.httpServer == nil {
		return ErrNotStarted
	}

	err := s.httpServer.Shutdown(ctx)
	s.httpServer = nil
	s.listener = nil
	if err != nil {
		return fmt.Errorf("failed to shut down gateway: %w", err)
	}

	log.Infof("[gateway] stopped")
	return nil
}
