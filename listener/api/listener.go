package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stephnangue/edgegate/logger"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

const (
	DefaultReadHeaderTimeout = 10 * time.Second
	DefaultIdleTimeout       = 2 * time.Minute
	DefaultDrainTimeout      = 30 * time.Second
)

// ApiListener serves the gateway over HTTP/1.1 and cleartext HTTP/2. TLS
// is terminated in front of it.
type ApiListener struct {
	logger       logger.Logger
	server       *http.Server
	drainTimeout time.Duration
	stopped      atomic.Bool

	mu   sync.Mutex
	addr net.Addr
}

type ApiListenerConfig struct {
	Logger            logger.Logger
	Address           string
	ReadHeaderTimeout time.Duration
	IdleTimeout       time.Duration

	// DrainTimeout bounds how long Stop waits for in-flight requests.
	DrainTimeout time.Duration
}

func NewApiListener(cfg ApiListenerConfig, httpHandler http.Handler) (*ApiListener, error) {
	if cfg.Address == "" {
		return nil, errors.New("listener address is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	if cfg.ReadHeaderTimeout <= 0 {
		cfg.ReadHeaderTimeout = DefaultReadHeaderTimeout
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = DefaultDrainTimeout
	}

	// No read or write timeout: bodies are streamed to and from downstream
	// services, which are bounded by the upstream request timeout instead.
	server := &http.Server{
		Addr:              cfg.Address,
		Handler:           h2c.NewHandler(httpHandler, &http2.Server{IdleTimeout: cfg.IdleTimeout}),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		ErrorLog:          logger.NewStdLogger(cfg.Logger, logger.DebugLevel),
	}

	return &ApiListener{
		logger:       cfg.Logger,
		server:       server,
		drainTimeout: cfg.DrainTimeout,
	}, nil
}

// Addr returns the bound address once the listener is started, and the
// configured one before.
func (l *ApiListener) Addr() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.addr != nil {
		return l.addr.String()
	}
	return l.server.Addr
}

func (l *ApiListener) Type() string {
	return "api"
}

// Start binds the address and serves until ctx is cancelled, then drains.
// A bind failure is returned immediately.
func (l *ApiListener) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", l.server.Addr)
	if err != nil {
		l.logger.Error("failed to bind HTTP listener", logger.String("address", l.server.Addr), logger.Err(err))
		return err
	}
	l.mu.Lock()
	l.addr = ln.Addr()
	l.mu.Unlock()

	l.logger.Info("starting HTTP server", logger.String("address", ln.Addr().String()))

	errChan := make(chan error, 1)
	go func() {
		err := l.server.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		l.logger.Info("shutdown signal received")
		return l.Stop()
	case err := <-errChan:
		l.logger.Error("HTTP server error", logger.Err(err))
		return err
	}
}

// Stop stops accepting connections and waits up to the drain timeout for
// in-flight requests.
func (l *ApiListener) Stop() error {
	if !l.stopped.CompareAndSwap(false, true) {
		l.logger.Info("HTTP server already stopped, skipping")
		return nil
	}

	l.logger.Info("shutting down HTTP server", logger.Duration("drain_timeout", l.drainTimeout))

	ctx, cancel := context.WithTimeout(context.Background(), l.drainTimeout)
	defer cancel()

	err := l.server.Shutdown(ctx)
	if err != nil {
		l.logger.Error("error when shutting down the http server", logger.Err(err))
		_ = l.server.Close()
		return err
	}

	l.logger.Info("HTTP server stopped gracefully")
	return nil
}
