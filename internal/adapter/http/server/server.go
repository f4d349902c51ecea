package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Temutjin2k/hust-run/internal/adapter/http/handler"
	"github.com/Temutjin2k/hust-run/internal/adapter/http/middleware"
	"github.com/Temutjin2k/hust-run/internal/domain/types"
	"github.com/Temutjin2k/hust-run/pkg/logger"
	wrap "github.com/Temutjin2k/hust-run/pkg/logger/wrapper"
	ws "github.com/Temutjin2k/hust-run/pkg/wsHub"
)

const serverIPAddress = "%s:%d"

type Config struct {
	Host string
	Port int
}

// RunService is everything the control API needs from the runner.
type RunService interface {
	handler.SessionService
	handler.HistoryService
}

type API struct {
	mux    *http.ServeMux
	server *http.Server
	routes *handlers
	m      *middleware.Middleware

	addr string
	log  logger.Logger
}

type handlers struct {
	health  *handler.Health
	session *handler.Session
	history *handler.History
	live    *handler.Live
}

// New builds the control API. tokens may be nil, which leaves the API open.
func New(cfg Config, runs RunService, hub *ws.ConnectionHub, tokens middleware.TokenValidator, log logger.Logger) (*API, error) {
	if runs == nil {
		return nil, errors.New("run service is required")
	}
	if hub == nil {
		return nil, errors.New("websocket hub is required")
	}
	if cfg.Host == "" {
		cfg.Host = "0.0.0.0"
	}

	api := &API{
		mux: http.NewServeMux(),
		routes: &handlers{
			health:  handler.NewHealth("hust-run", runs, log),
			session: handler.NewSession(runs, log),
			history: handler.NewHistory(runs, log),
			live:    handler.NewLive(hub, runs, log),
		},
		m:    middleware.NewMiddleware(tokens, log),
		addr: fmt.Sprintf(serverIPAddress, cfg.Host, cfg.Port),
		log:  log,
	}

	api.setupRoutes()

	api.server = &http.Server{
		Addr:              api.addr,
		Handler:           api.withMiddleware(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return api, nil
}

func (a *API) Addr() string {
	return a.addr
}

// Handler exposes the full middleware chain, mainly for tests.
func (a *API) Handler() http.Handler {
	return a.server.Handler
}

func (a *API) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	ctx = wrap.WithAction(ctx, types.ActionHTTPServerStop)

	a.log.Debug(ctx, "shutting down HTTP server...", "address", a.addr)
	if err := a.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("error shutting down server: %w", err)
	}
	a.log.Debug(ctx, "shutting down HTTP server completed")

	return nil
}

func (a *API) Run(ctx context.Context, errCh chan<- error) {
	go func() {
		ctx = wrap.WithAction(ctx, types.ActionHTTPServerStart)
		a.log.Info(ctx, "started http server", "address", a.addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("failed to start HTTP server: %w", err)
			return
		}
	}()
}

// withMiddleware applies middlewares to the mux
func (a *API) withMiddleware() http.Handler {
	return a.m.Recover(a.m.RequestID(a.m.Logging(a.m.Auth(a.m.Metrics(a.mux)))))
}
