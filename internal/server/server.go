// Package server exposes the registered models over an HTTP API: localized
// record CRUD, schema inspection and sync, language negotiation, and the
// websocket change feed.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/kapu/modeltrans-go/internal/cache"
	"github.com/kapu/modeltrans-go/internal/config"
	"github.com/kapu/modeltrans-go/internal/constants"
	"github.com/kapu/modeltrans-go/internal/feed"
	"github.com/kapu/modeltrans-go/internal/schema"
	"github.com/kapu/modeltrans-go/internal/store"
	"github.com/kapu/modeltrans-go/internal/translate"
)

// Deps carries everything the HTTP layer needs. Records, Redis, and Hub may
// be nil; the matching endpoints degrade instead of failing at startup.
type Deps struct {
	Config    config.ServerConfig
	DB        *store.Database
	Repo      *store.Repository
	Registry  *translate.Registry
	Records   *cache.RecordCache
	Redis     *cache.Service
	Inspector schema.Inspector
	Syncer    *schema.Syncer
	Hub       *feed.Hub
	Sink      store.EventSink

	// HideTranslationColumns drops auto-generated per-language columns from
	// the schema change report, for installations whose migration tooling
	// manages those columns elsewhere.
	HideTranslationColumns bool
}

type Server struct {
	echo   *echo.Echo
	port   int
	logger *zap.Logger
}

func New(deps Deps, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = constants.ServerConfig.ReadTimeout
	e.Server.WriteTimeout = constants.ServerConfig.WriteTimeout

	resolver := deps.Registry.Resolver()

	e.Use(middleware.RequestID())
	e.Use(RequestLogger(logger))
	e.Use(middleware.Recover())
	e.Use(Language(resolver))

	h := &handlers{
		db:              deps.DB,
		repo:            deps.Repo,
		registry:        deps.Registry,
		resolver:        resolver,
		accessor:        translate.NewAccessor(deps.Registry),
		records:         deps.Records,
		redis:           deps.Redis,
		inspector:       deps.Inspector,
		syncer:          deps.Syncer,
		hub:             deps.Hub,
		sink:            deps.Sink,
		hideTranslation: deps.HideTranslationColumns,
		logger:          logger,
	}
	h.register(e, deps.Config.AdminToken)

	return &Server{echo: e, port: deps.Config.Port, logger: logger}
}

// Start blocks until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("HTTP server listening", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Handler exposes the routing tree for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
