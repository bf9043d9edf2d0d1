// Package server exposes the ledger, the identity directory and the mailbox
// over HTTP.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gezibash/arc-ledger/internal/directory"
	"github.com/gezibash/arc-ledger/internal/ledger"
	"github.com/gezibash/arc-ledger/internal/mailbox"
	"github.com/gezibash/arc-ledger/internal/observability"
	"github.com/gezibash/arc-ledger/pkg/logging"
)

// maxBodyBytes bounds every request body.
const maxBodyBytes = 1 << 20

var _ ledger.Resolver = (*directory.Directory)(nil)

// Server is the HTTP front of the sequencer.
type Server struct {
	ledger    *ledger.Ledger
	directory *directory.Directory
	mailbox   *mailbox.Mailbox
	metrics   *observability.Metrics
	log       *logging.Logger
	handler   http.Handler
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics records HTTP requests on m.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Server) { s.log = l }
}

// New builds the HTTP handler tree.
func New(l *ledger.Ledger, dir *directory.Directory, mb *mailbox.Mailbox, opts ...Option) *Server {
	s := &Server{
		ledger:    l,
		directory: dir,
		mailbox:   mb,
		log:       logging.New(nil),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.WithComponent("http")

	mux := http.NewServeMux()

	mux.HandleFunc("POST /register/group", s.handleRegisterGroup)
	mux.HandleFunc("GET /is/group/registered/{group}", s.handleIsGroupRegistered)
	mux.HandleFunc("GET /get/group/members/{group}", s.handleGroupMembers)
	mux.HandleFunc("GET /get/group/state/{group}", s.handleGroupState)
	mux.HandleFunc("GET /get/group/operation/{group}/{state...}", s.handleGroupOperation)
	mux.HandleFunc("GET /get/group/prev/state/{group}/{state...}", s.handleGroupPrevState)
	mux.HandleFunc("GET /get/group/history/{group}", s.handleGroupHistory)
	mux.HandleFunc("POST /group/invite/{group}", s.handleGroupInvite)

	mux.HandleFunc("POST /register/username/{username}", s.handleRegisterUsername)
	mux.HandleFunc("GET /is/username/registered/{username}", s.handleIsUsernameRegistered)
	mux.HandleFunc("POST /put/signkey", s.handlePutSignKey)
	mux.HandleFunc("POST /put/boxkey", s.handlePutBoxKey)
	mux.HandleFunc("POST /put/ipfsaddr", s.handlePutStorageAddress)
	mux.HandleFunc("GET /get/user/publickeyhash/{username}", s.handleUserHash)
	mux.HandleFunc("GET /get/user/signkey/{username}", s.handleUserSignKey)
	mux.HandleFunc("GET /get/user/boxkey/{username}", s.handleUserBoxKey)
	mux.HandleFunc("GET /get/user/ipfsaddr/{username}", s.handleUserStorageAddress)

	mux.HandleFunc("POST /send/message", s.handleSendMessage)
	mux.HandleFunc("GET /get/messages/{username}", s.handleGetMessages)

	s.handler = withCorrelation(observability.HTTPMiddleware(s.metrics, mux))
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// HTTPServer returns an http.Server serving s on addr.
func (s *Server) HTTPServer(addr string, readTimeout, writeTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readTimeout,
		WriteTimeout:      writeTimeout,
		ErrorLog:          slog.NewLogLogger(s.log.Slog().Handler(), slog.LevelWarn),
	}
}

