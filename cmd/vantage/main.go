package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pires/go-proxyproto"
	log "github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"vantage/internal/config"
	"vantage/internal/dashboard"
	"vantage/internal/handlers"
	"vantage/internal/logging"
	"vantage/internal/middleware"
	"vantage/internal/netinfo"
	"vantage/internal/store"
)

// AppVersion defines the current version of the service
const AppVersion = "v1.0.0"

var (
	optConfig   = flag.StringP("config", "c", "config.yaml", "config file to be used")
	optListen   = flag.String("listen", "", "listen address, overrides the config file")
	optLogLevel = flag.String("log-level", "", "debug, info, warn or error; overrides the config file")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig(*optConfig)
	if err != nil {
		log.Warnf("failed to load config: %v, using default config", err)
	}
	if *optListen != "" {
		cfg.Listen = *optListen
	}
	if *optLogLevel != "" {
		cfg.Log.Level = *optLogLevel
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	// Create root context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fetcher, closeFetcher, err := newFetcher(cfg)
	if err != nil {
		log.Fatalf("network info provider: %v", err)
	}
	defer closeFetcher()

	limiter, closeLimiter := newLimiter(ctx, cfg)
	defer closeLimiter()

	secret, err := sessionSecret(cfg)
	if err != nil {
		log.Fatalf("session secret: %v", err)
	}

	manager := dashboard.NewManager(fetcher, cfg.Session.TTL)
	go manager.Run(ctx, time.Minute)

	api := handlers.NewAPI(ctx, manager, AppVersion)
	sessions := middleware.NewSessions(secret, cfg.Session.CookieName, cfg.Session.TTL)
	trusted, err := middleware.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		log.Fatalf("trusted proxies: %v", err)
	}
	router := handlers.NewRouter(api, sessions, handlers.RouterOptions{
		Limiter:        limiter,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		AdminKey:       cfg.Admin.APIKey,
		TrustedProxies: trusted,
	})

	// Server configuration
	server := &http.Server{
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ln, err := listen(cfg)
	if err != nil {
		log.Fatalf("could not listen on %s: %v", cfg.Listen, err)
	}

	// Start server in a goroutine
	go func() {
		log.WithFields(log.Fields{
			"addr":     cfg.Listen,
			"version":  AppVersion,
			"provider": cfg.Provider.Kind,
		}).Info("starting vantage")
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("could not start server: %v", err)
		}
	}()

	// Block until shutdown signal
	<-ctx.Done()
	stop()
	log.Info("shutdown signal received")

	// Gracefully shut down
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("server forced to shutdown: %v", err)
		return
	}

	log.Info("server exited gracefully")
}

func newFetcher(cfg *config.VantageConfig) (netinfo.Fetcher, func(), error) {
	var (
		fetcher netinfo.Fetcher
		closeFn = func() {}
	)
	switch cfg.Provider.Kind {
	case "geoip":
		g, err := netinfo.OpenGeoIP(cfg.Provider.CityDB, cfg.Provider.ASNDB)
		if err != nil {
			return nil, nil, err
		}
		fetcher = g
		closeFn = func() {
			if err := g.Close(); err != nil {
				log.Warnf("closing geoip databases: %v", err)
			}
		}
	default:
		fetcher = netinfo.NewHTTPFetcher(cfg.Provider.Endpoint,
			netinfo.WithPerIPEndpoint(cfg.Provider.EndpointTemplate),
			netinfo.WithTimeout(cfg.Provider.Timeout),
		)
	}
	if loc := cfg.ServerLocation; loc != nil {
		fetcher = netinfo.WithDistance(fetcher, loc.Latitude, loc.Longitude)
	}
	return fetcher, closeFn, nil
}

func newLimiter(ctx context.Context, cfg *config.VantageConfig) (store.Limiter, func()) {
	rl := cfg.RateLimit
	switch rl.Backend {
	case "off":
		return nil, func() {}
	case "redis":
		r := store.NewRedisLimiter(rl.RedisAddr, rl.RequestsPerMinute)
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := r.Ping(pingCtx); err != nil {
			// Keep going; the middleware fails open while redis is away.
			log.Warnf("rate limiter: %v", err)
		}
		return r, func() { r.Close() }
	default:
		m := store.NewMemoryLimiter(rl.RequestsPerMinute, rl.Burst)
		go m.Run(ctx, 10*time.Minute)
		return m, func() {}
	}
}

// sessionSecret returns the configured signing key or a random one, in
// which case sessions do not survive a restart.
func sessionSecret(cfg *config.VantageConfig) ([]byte, error) {
	if cfg.Session.Secret != "" {
		return []byte(cfg.Session.Secret), nil
	}
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}
	log.Warn("session.secret not set, using a random key")
	return b, nil
}

func listen(cfg *config.VantageConfig) (net.Listener, error) {
	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return nil, err
	}
	if cfg.ProxyProtocol {
		return &proxyproto.Listener{Listener: ln, ReadHeaderTimeout: 5 * time.Second}, nil
	}
	return ln, nil
}
