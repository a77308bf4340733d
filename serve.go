package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/mpryc/nbp-mcp-server/internal/logger"
	"github.com/mpryc/nbp-mcp-server/internal/metrics"
	"github.com/mpryc/nbp-mcp-server/internal/nbp"
	"github.com/mpryc/nbp-mcp-server/internal/tools"
	"github.com/mpryc/nbp-mcp-server/internal/usage"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// app holds the long-lived pieces shared by every session.
type app struct {
	logger     *zap.Logger
	closeLog   func()
	client     *nbp.Client
	ledger     *usage.Ledger
	dispatcher *tools.Dispatcher
}

func newApp(s settings) (*app, error) {
	log, closeLog, err := logger.New(s.LogLevel, s.LogFormat, s.LogOutput)
	if err != nil {
		return nil, err
	}

	client, err := nbp.New(s.APIURL, s.UserAgent, s.Timeout)
	if err != nil {
		closeLog()
		return nil, err
	}
	client.SetObserver(metrics.ObserveUpstream)

	a := &app{logger: log, closeLog: closeLog, client: client}

	opts := tools.Options{
		Logger:           log,
		Observe:          metrics.ObserveToolCall,
		RangeConcurrency: s.RangeConcurrency,
	}
	if usage.Enabled(s.Usage.Driver) {
		ledger, err := usage.Open(s.Usage)
		if err != nil {
			closeLog()
			return nil, fmt.Errorf("open usage ledger: %w", err)
		}
		a.ledger = ledger
		opts.Recorder = ledger
		log.Info("usage ledger enabled", zap.String("driver", ledger.Driver()), zap.String("target", ledger.Target()))
	}

	a.dispatcher = tools.NewDispatcher(tools.NewRegistry(), client, opts)
	return a, nil
}

func (a *app) Close() {
	if err := a.ledger.Close(); err != nil {
		a.logger.Warn("close usage ledger", zap.Error(err))
	}
	_ = a.logger.Sync()
	if a.closeLog != nil {
		a.closeLog()
	}
}

func serve(ctx context.Context, a *app, s settings) error {
	switch s.Transport {
	case transportStdio:
		return serveStdio(ctx, a)
	case transportStreamableHTTP:
		return serveHTTP(ctx, a, s.address())
	default:
		return fmt.Errorf("unsupported transport %q", s.Transport)
	}
}

func serveStdio(ctx context.Context, a *app) error {
	server := newMCPServer(a.dispatcher, resolveVersion(), true)
	a.logger.Info("serving MCP over stdio", zap.String("upstream", a.client.BaseURL()))

	err := server.Run(ctx, &mcp.StdioTransport{})
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF) {
		return fmt.Errorf("run mcp stdio server: %w", err)
	}
	return nil
}

func serveHTTP(ctx context.Context, a *app, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           newHTTPHandler(a),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("serving MCP over streamable HTTP",
			zap.String("addr", addr),
			zap.String("endpoint", "/mcp"),
			zap.String("upstream", a.client.BaseURL()),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		a.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}

func newHTTPHandler(a *app) http.Handler {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery(), metrics.Middleware(), requestLogger(a.logger))

	server := newMCPServer(a.dispatcher, resolveVersion(), false)
	streamable := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return server
	}, nil)

	router.Any("/mcp", gin.WrapH(streamable))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "version": resolveVersion()})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()

		log.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(started)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
