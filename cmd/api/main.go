package main

import (
	"context"
	"database/sql"
	"net/http"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	server "reviewdesk/internal/adapters/http_server"
	"reviewdesk/internal/adapters/observability"
	"reviewdesk/internal/adapters/platform"
	redisad "reviewdesk/internal/adapters/redis"
	"reviewdesk/internal/app"
	"reviewdesk/internal/audit"
	"reviewdesk/internal/shared"
	mysqlrepo "reviewdesk/internal/storage/mysql"
)

func main() {
	cfg := shared.Load()

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv)

	policy, err := shared.LoadPolicy(cfg.PolicyFile)
	if err != nil {
		log.Fatal().Err(err).Str("file", cfg.PolicyFile).Msg("policy load failed")
	}
	if cfg.BusinessID == "" {
		log.Warn().Msg("BUSINESS_ID is empty; publishing is disabled")
	}

	reg := observability.InitRegistry()
	observability.Serve(cfg.MetricsAddr, reg)

	// db
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("database connection ok")

	// deps
	repo := mysqlrepo.New(db)
	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	if err := cache.Ping(context.Background()); err != nil {
		log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unreachable; listings will not be cached")
	}
	client, err := platform.New(cfg.PlatformBase, cfg.PlatformKey, cfg.PlatformRPS)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize platform client")
	}
	q := app.NewQueryService(repo, cache, cfg.CacheTTL)
	p := app.NewPublicationService(repo, client, audit.New(repo), cache, policy, cfg.BusinessID, cfg.PublishWorkers)

	// http
	srv := server.New()
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(&server.Handlers{Q: q, P: p})

	log.Info().Str("addr", cfg.HTTPAddr).Msg("API listening")
	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Mux()}

	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("http server failed")
	}
}
