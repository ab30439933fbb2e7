package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/mohammad-safakhou/agora/config"
	"github.com/mohammad-safakhou/agora/internal/debate/core"
	"github.com/mohammad-safakhou/agora/internal/debate/telemetry"
	"github.com/mohammad-safakhou/agora/internal/store"
)

// Run starts the HTTP API: auth, debate lifecycle, evidence search,
// health and metrics.
func Run(cfg *config.Config) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Cookie", "Authorization"},
		AllowCredentials: true,
	}))

	tele := telemetry.NewTelemetry(cfg.Telemetry)

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(tele.Handler()))

	llm, err := core.NewLLMProvider(cfg.LLM)
	if err != nil {
		return err
	}
	searcher, err := core.NewSearcher(cfg.Search)
	if err != nil {
		return err
	}

	ctx := context.Background()
	var checkpoints core.CheckpointStore
	if cfg.Storage.Redis.Host != "" {
		rcs, err := store.NewRedisCheckpointStore(ctx, cfg.Storage.Redis)
		if err != nil {
			return err
		}
		checkpoints = rcs
	}
	var archive core.ArchiveStore
	if dsn, err := cfg.Storage.Postgres.DSN(); err == nil {
		if mErr := store.Migrate("file://migrations", dsn, "up", 0); mErr != nil {
			baseLogger.Printf("migrations: %v", mErr)
		}
		pa, err := store.NewPostgresArchive(ctx, dsn)
		if err != nil {
			return err
		}
		archive = pa
	}

	auth, err := newAuthHandler(cfg.Server)
	if err != nil {
		return err
	}

	api := e.Group("/api")
	auth.Register(api.Group("/auth"))

	dh := &DebatesHandler{
		Cfg:         cfg,
		LLM:         llm,
		Searcher:    searcher,
		Telemetry:   tele,
		Checkpoints: checkpoints,
		Archive:     archive,
		Logger:      log.New(log.Writer(), "[DEBATES] ", log.LstdFlags),
		finished:    map[string]*core.DebateState{},
	}
	dh.Register(api.Group("/debates"), auth.Secret)

	addr := cfg.Server.Address
	if addr == "" {
		addr = ":10001"
	}
	baseLogger.Printf("listening on %s", addr)
	return e.Start(addr)
}
