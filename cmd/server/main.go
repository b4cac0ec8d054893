package main // Entry point of the seat reservation service

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/cinema-seat-sync/internal/broadcast"
	"github.com/iliyamo/cinema-seat-sync/internal/catalog"
	"github.com/iliyamo/cinema-seat-sync/internal/config"
	"github.com/iliyamo/cinema-seat-sync/internal/database"
	"github.com/iliyamo/cinema-seat-sync/internal/handler"
	"github.com/iliyamo/cinema-seat-sync/internal/lease"
	"github.com/iliyamo/cinema-seat-sync/internal/middleware"
	"github.com/iliyamo/cinema-seat-sync/internal/queue"
	"github.com/iliyamo/cinema-seat-sync/internal/registry"
	"github.com/iliyamo/cinema-seat-sync/internal/repository"
	"github.com/iliyamo/cinema-seat-sync/internal/router"
	"github.com/iliyamo/cinema-seat-sync/internal/service"
)

func main() {
	os.Exit(run())
}

// run wires and serves until SIGINT or SIGTERM.  Failures after startup
// return a non-zero code so deferred closes still run.
func run() int {
	config.LoadDotEnv()  // .env is optional
	cfg := config.Load() // Load environment config

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Redis is required by the redis registry and relay; otherwise it only
	// enables rate limiting and the layout cache.
	var rdb *redis.Client
	needRedis := cfg.RegistryBackend == "redis" || cfg.BroadcastRelay == "redis"
	if rdb = config.NewRedisClient(); rdb == nil {
		if needRedis {
			log.Printf("redis: unreachable but required by REGISTRY_BACKEND or BROADCAST_RELAY")
			return 1
		}
		log.Printf("redis: unreachable, rate limiting and layout cache disabled")
	} else {
		defer rdb.Close()
	}

	var reg registry.Registry = registry.NewMemory()
	if cfg.RegistryBackend == "redis" {
		reg = registry.NewRedis(rdb, cfg.RegistryPrefix)
	}

	var relay broadcast.Relay
	switch cfg.BroadcastRelay {
	case "redis":
		relay = broadcast.NewRedisRelay(rdb, cfg.RelayChannel)
	case "nats":
		nc, err := broadcast.DialNATS(cfg.NATSURL, "seat-sync")
		if err != nil {
			log.Printf("nats: %v", err)
			return 1
		}
		relay = broadcast.NewNATSRelay(nc, cfg.RelayChannel)
	}
	hub := broadcast.NewHub(broadcast.Options{Buffer: cfg.SubscriberBuffer, Relay: relay})
	defer hub.Close()
	go func() {
		if err := hub.Run(ctx); err != nil {
			log.Printf("broadcast: relay stopped: %v", err)
		}
	}()

	var db *sql.DB
	if cfg.CatalogSource == "mysql" || cfg.BookingStore {
		var err error
		if db, err = database.Open(cfg.DB.DSN()); err != nil {
			log.Printf("mysql: %v", err)
			return 1
		}
		defer db.Close()
		if err := database.EnsureSchema(ctx, db); err != nil {
			log.Printf("mysql: schema: %v", err)
			return 1
		}
	}

	var cat catalog.Source = catalog.NewStatic(cfg.StaticShows, cfg.StaticRows, cfg.StaticCols)
	if cfg.CatalogSource == "mysql" {
		cat = catalog.NewSQL(repository.NewShowSeatRepo(db))
	}

	recorder := &service.BookingRecorder{}
	if cfg.BookingStore {
		recorder.Store = repository.NewBookingRepo(db)
	}
	if cfg.RabbitMQURL != "" {
		recorder.Publisher = &service.BookingPublisher{URL: cfg.RabbitMQURL}
	}
	var sink lease.BookingSink
	if recorder.Store != nil || recorder.Publisher != nil {
		sink = recorder
	}

	mgr := lease.NewManager(reg, hub, cat, lease.Options{
		TTL:           cfg.LeaseTTL,
		SweepInterval: cfg.SweepInterval,
		Stripes:       cfg.LockStripes,
		Sink:          sink,
	})
	if err := mgr.Recover(ctx); err != nil {
		log.Printf("lease: recover: %v", err)
		return 1
	}
	go mgr.Run(ctx)

	if cfg.BookingConsumer {
		consumer := &queue.Consumer{URL: cfg.RabbitMQURL, LogPath: cfg.BookingLogPath}
		go func() {
			if err := consumer.Run(ctx); err != nil {
				log.Printf("queue: consumer stopped: %v", err)
			}
		}()
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.Logger())

	deps := router.Deps{
		Seats:     handler.NewSeatHandler(mgr, cat),
		WS:        handler.NewWSHandler(mgr, hub, cfg.WSReadLimit, cfg.WSFrameRate),
		JWTSecret: cfg.JWTSecret,
		Origin:    hub.Origin(),
	}
	if rdb != nil {
		deps.RateLimit = middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)
		deps.Cache = middleware.NewRedisCache(config.LoadCacheConfig(), rdb)
	}
	router.RegisterRoutes(e, deps)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s, registry=%s, relay=%s, node=%s)",
		addr, cfg.Env, cfg.RegistryBackend, cfg.BroadcastRelay, hub.Origin())

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- e.Start(addr)
	}()

	code := 0
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Printf("http: %v", err)
			code = 1
		}
	}
	stop()
	log.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	return code
}
