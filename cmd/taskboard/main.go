package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"taskboard/api"
	"taskboard/auth"
	"taskboard/config"
	"taskboard/domain"
	"taskboard/feed"
	"taskboard/gateway"
	"taskboard/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}
	logger := log.StandardLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Tracing {
		shutdown := telemetry.Setup(logger)
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(sctx); err != nil {
				logger.WithError(err).Warn("tracer shutdown")
			}
		}()
	}

	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		pool, err = pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres: %v", err)
		}
		defer pool.Close()
	}

	var base gateway.Service
	if pool != nil {
		base = gateway.NewPostgres(pool)
	} else {
		base = gateway.NewRPC(cfg.DataServiceURL, cfg.DataServiceKey, nil)
	}

	var rc *redis.Client
	redisOpts, err := cfg.RedisOptions()
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	if redisOpts != nil {
		rc = redis.NewClient(redisOpts)
		defer rc.Close()
	}

	cache := gateway.NewCache(base, rc, cfg.Cache.CountTTL).WithLookupTTL(cfg.Cache.LookupTTL)
	svc := gateway.NewTraced(cache)

	var src feed.Subscriber
	switch cfg.Feed.Source {
	case config.FeedPostgres:
		src = feed.NewPostgres(pool, cfg.FeedChannel(), cfg.Feed.Table, logger)
	case config.FeedRedis:
		src = feed.NewRedis(rc, cfg.FeedChannel(), cfg.Feed.Table, logger)
	case config.FeedSSE:
		src = feed.NewSSE(cfg.Feed.SSEURL, cfg.DataServiceKey, cfg.Feed.Table, nil, logger)
	}
	broker := feed.NewBroker(logger)
	unpipe, err := broker.Pipe(ctx, src)
	if err != nil {
		log.Fatalf("change feed: %v", err)
	}
	defer unpipe()
	// Any row change can move a count, so cached counts go stale at once.
	uncache, _ := broker.Subscribe(ctx, func(domain.ChangeEvent) { cache.Invalidate(ctx) })
	defer uncache()

	opts := auth.Options{KeyCacheTTL: cfg.Auth.JWKSCacheTTL}
	if rc != nil {
		opts.Revocations = auth.NewRedisRevocations(rc)
	}
	var authenticator *auth.Auth
	if cfg.Auth.TestMode {
		opts.TestSecret = []byte(cfg.Auth.TestSecret)
		authenticator = auth.NewAuth(nil, opts)
	} else {
		jwks, err := keyfunc.Get(cfg.JWKSURL(), keyfunc.Options{})
		if err != nil {
			log.Fatalf("jwks: %v", err)
		}
		defer jwks.EndBackground()
		opts.Audience = cfg.Auth.Audience
		opts.Issuer = cfg.Issuer()
		authenticator = auth.NewAuth(jwks, opts)
	}

	sessions := api.NewRegistry(ctx, svc, broker, cfg.SessionConfig(), cfg.Board.SessionIdleTimeout, logger)
	go sessions.Run(ctx, time.Minute)

	e := echo.New()
	e.HideBanner = true
	e.JSONSerializer = api.SonicSerializer{}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, echo.HeaderContentEncoding},
	}))
	e.Use(api.RequestID(), api.GzipRequestMiddleware())
	api.Register(e, svc, sessions, authenticator, api.Options{DiscardLimit: cfg.DiscardLimit}, logger)

	go func() {
		if err := e.Start(cfg.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("http server")
		}
	}()
	<-ctx.Done()

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(sctx); err != nil {
		logger.WithError(err).Warn("http shutdown")
	}
	sessions.CloseAll()
}
