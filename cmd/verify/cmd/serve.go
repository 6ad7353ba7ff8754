package cmd

import (
	"context"
	cryptotls "crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/psantana5/docverify/internal/api"
	"github.com/psantana5/docverify/internal/config"
	"github.com/psantana5/docverify/internal/report"
	"github.com/psantana5/docverify/pkg/auth"
	"github.com/psantana5/docverify/pkg/logging"
	"github.com/psantana5/docverify/pkg/ratelimit"
	"github.com/psantana5/docverify/pkg/shutdown"
	tlsutil "github.com/psantana5/docverify/pkg/tls"
	"github.com/psantana5/docverify/pkg/tracing"
)

const (
	shutdownTimeout   = 30 * time.Second
	limiterCleanup    = 5 * time.Minute
	limiterMaxIdle    = 10 * time.Minute
	readHeaderTimeout = 10 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve verification runs over HTTP",
	Long: `Starts an HTTP API that runs the configured verification on demand.

Endpoints:
  POST /api/v1/verify      run the pipeline, returns {run, output}
  GET  /api/v1/runs        stored runs (requires history.type)
  GET  /api/v1/runs/{id}   one stored run
  GET  /api/v1/failures    failed runs seen by this server
  GET  /metrics            Prometheus metrics
  GET  /health             liveness

When serve.api_keys is set, API requests need "Authorization: Bearer <key>".`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "listen address (default :8080)")
	if err := viper.BindPFlag("serve.addr", serveCmd.Flags().Lookup("addr")); err != nil {
		panic(err)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(viper.GetViper(), nil)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer logger.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	tp, err := newTracer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	v, err := newVerifier(ctx, cfg, logger, tp)
	if err != nil {
		return err
	}

	router, err := newRouter(ctx, cfg, v, tp, logger)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              cfg.Serve.Addr,
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	mgr := shutdown.New(shutdownTimeout, logger)
	mgr.Register("tracer", tp.Shutdown)
	mgr.Register("history", shutdown.CloseResource(v))
	if cfg.Serve.TLSEnabled() {
		if srv.TLSConfig, err = serverTLS(cfg.Serve, mgr, logger); err != nil {
			mgr.Shutdown()
			return err
		}
	}
	mgr.Register("http", shutdown.StopHTTPServer(srv))

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Verification API listening", map[string]interface{}{
			"addr":   cfg.Serve.Addr,
			"target": cfg.Target.Path,
			"tls":    srv.TLSConfig != nil,
		})
		var err error
		if srv.TLSConfig != nil {
			err = srv.ListenAndServeTLS("", "")
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", map[string]interface{}{"error": err.Error()})
			errCh <- err
			cancel()
		}
	}()

	if err := mgr.WaitWithContext(ctx); err != nil {
		return err
	}
	select {
	case err := <-errCh:
		return fmt.Errorf("failed to serve: %w", err)
	default:
		logger.Info("Server stopped")
		return nil
	}
}

// serverTLS loads the configured certificate, or generates a self-signed
// one that is removed again on shutdown.
func serverTLS(cfg config.ServeConfig, mgr *shutdown.Manager, logger *logging.Logger) (*cryptotls.Config, error) {
	certFile, keyFile := cfg.TLSCert, cfg.TLSKey
	if certFile == "" {
		dir, err := os.MkdirTemp("", "docverify-tls-")
		if err != nil {
			return nil, fmt.Errorf("failed to create certificate directory: %w", err)
		}
		mgr.Register("self-signed certificate", func(context.Context) error {
			return os.RemoveAll(dir)
		})

		certFile = filepath.Join(dir, "server.crt")
		keyFile = filepath.Join(dir, "server.key")
		if err := tlsutil.GenerateSelfSignedCert(certFile, keyFile, "localhost"); err != nil {
			return nil, err
		}
		logger.Warn("Serving with a self-signed certificate, not for production use", map[string]interface{}{"cert": certFile})
	}
	return tlsutil.LoadServerConfig(certFile, keyFile, cfg.ClientCA)
}

func newRouter(ctx context.Context, cfg *config.Config, v *verifier, tp *tracing.Provider, logger *logging.Logger) (*mux.Router, error) {
	keys := auth.NewAPIKeyManager()
	for i, key := range cfg.Serve.APIKeys {
		if err := keys.AddAPIKey(fmt.Sprintf("key-%d", i+1), key); err != nil {
			return nil, fmt.Errorf("serve.api_keys[%d]: %w", i, err)
		}
	}
	keyFunc := ratelimit.APIKeyFunc
	if !keys.Enabled() {
		logger.Warn("No API keys configured, the verification API is open")
		keyFunc = ratelimit.IPKeyFunc
	}

	limiter := ratelimit.NewLimiter(cfg.Serve.RateLimit, cfg.Serve.Burst)
	go func() {
		ticker := time.NewTicker(limiterCleanup)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := limiter.CleanupOldLimiters(limiterMaxIdle); n > 0 {
					logger.Debug("Removed idle rate limiters", map[string]interface{}{"count": n})
				}
			}
		}
	}()

	run := func(ctx context.Context, out io.Writer) (*report.Run, error) {
		if cfg.Pipeline.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cfg.Pipeline.Timeout)
			defer cancel()
		}
		return v.Verify(ctx, out)
	}

	router := mux.NewRouter()
	router.Use(tracing.HTTPMiddleware(tp))
	router.Use(limiter.Middleware(keyFunc))
	router.Use(keys.Middleware("/health", "/metrics"))

	api.NewHandler(run, v.history, report.NewFailureLog(100), logger).RegisterRoutes(router)
	router.Handle("/metrics", promhttp.HandlerFor(v.metrics.Registry(), promhttp.HandlerOpts{})).Methods("GET")
	return router, nil
}
