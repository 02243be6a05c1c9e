// cmd/gazette/main.go
//
// Gazette proxy tier – HTTP entry point.
//
// Start-up sequence
// -----------------
//
//  1. Load configuration (conf/.env → conf/gazette.yaml → GAZETTE_* env,
//     with vault: references resolved).
//
//  2. Start the daily rotating logger (tees to console in a TTY).
//
//  3. Build the single backend client from Config.BackendBaseURL.
//
//  4. Open the optional GeoLite2 database for access-log enrichment.
//
//  5. Mount /healthz, /metrics, and the proxy route set behind request-id,
//     enrichment, access-log, and security-header middleware.
//
//  6. Wrap everything in ForceHTTPS when http.force_https is set.
//
//  7. Serve until SIGINT or SIGTERM, then shut down gracefully.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/yanizio/gazette/internal/backend"
	"github.com/yanizio/gazette/internal/config"
	"github.com/yanizio/gazette/internal/logger"
	"github.com/yanizio/gazette/internal/middleware"
	"github.com/yanizio/gazette/internal/proxy"
	"github.com/yanizio/gazette/internal/requestinfo"
	"github.com/yanizio/gazette/internal/server"
)

// runningInTTY returns true when stdout is a character device.
func runningInTTY() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logOut, err := logger.New(cfg.Paths.Root, cfg.Log.Level, runningInTTY())
	if err != nil {
		log.Fatalf("start logger: %v", err)
	}
	defer func() { _ = logOut.Sync() }()

	be, err := backend.FromConfig(cfg)
	if err != nil {
		logOut.Fatalw("backend client", "err", err)
	}

	enricher, err := requestinfo.Open(cfg.GeoIP.Path)
	if err != nil {
		logOut.Fatalw("geoip", "err", err)
	}
	defer enricher.Close()

	logOut.Infow("gazette starting",
		"env", cfg.Env,
		"backend", be.BaseURL(),
		"cross_site_cookies", cfg.IsProduction(),
	)

	handler := middleware.ForceHTTPS(cfg.HTTP.ForceHTTPS,
		newHandler(cfg, be, enricher, logOut))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.ListenAndServe(ctx, server.New(cfg.HTTP.ListenAddr, handler), logOut); err != nil {
		logOut.Fatalw("http server", "err", err)
	}
	logOut.Infow("gazette stopped")
}

// newHandler assembles the root router.
func newHandler(cfg *config.Config, be backend.Doer, enricher *requestinfo.Enricher, logOut *zap.SugaredLogger) http.Handler {
	r := chi.NewRouter()
	r.Use(
		chimw.RequestID,
		enricher.Middleware,
		middleware.AccessLog(logOut),
		middleware.Security(cfg.IsProduction()),
	)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Mount("/", proxy.NewRouter(be, proxy.Options{
		Log:        logOut,
		Production: cfg.IsProduction(),
	}))
	return r
}
