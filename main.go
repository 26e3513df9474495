// vpnctl - multi-tenant VPN/tunneling control plane
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"vpnctl/config"
	"vpnctl/internal/activeconn"
	"vpnctl/internal/channel"
	"vpnctl/internal/metrics"
	"vpnctl/internal/mutator"
	"vpnctl/internal/observer"
	"vpnctl/internal/osaccount"
	"vpnctl/internal/presence"
	"vpnctl/internal/proxy"
	"vpnctl/internal/reconciler"
	"vpnctl/internal/store"
	"vpnctl/internal/upstreamconfig"
	"vpnctl/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)
	logger.SetLevel(logrus.InfoLevel)

	logger.Info("starting vpnctl control plane")

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Error("failed to load configuration")
		os.Exit(1)
	}
	if !cfg.LogsEnabled {
		logger.SetLevel(logrus.ErrorLevel)
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		logger.WithError(err).Error("failed to connect to authoritative store")
		os.Exit(2)
	}
	st := store.New(db)
	if err := st.Migrate(); err != nil {
		logger.WithError(err).Error("failed to migrate authoritative store")
		os.Exit(2)
	}
	logger.Info("authoritative store ready")

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	{
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			logger.WithError(err).Error("failed to connect to presence store")
			cancel()
			os.Exit(2)
		}
		cancel()
	}
	pr := presence.New(rdb)
	logger.Info("presence store ready")

	osAdapter := osaccount.New(logger)

	reloader := upstreamconfig.NewSystemdReloader(logger)
	writer := upstreamconfig.New(upstreamconfig.Paths{
		Xray:  cfg.UpstreamConfig.XrayPath,
		V2Ray: cfg.UpstreamConfig.V2RayPath,
	}, reloader, logger)

	rc := reconciler.New(st, osAdapter, writer, logger)
	mu := mutator.New(st, osAdapter, writer, logger)

	telemetry := observer.NewXrayTelemetry(cfg.XrayAPI.Host, cfg.XrayAPI.Port)
	obs := observer.New(st, pr, osAdapter, telemetry, cfg.ObserverTick, logger)

	registry := activeconn.New()
	dispatcher := proxy.New(cfg.ProxyBackendAddr, st, registry, pr, logger)

	syncTracker := channel.NewSyncTracker()
	ctl := channel.New(cfg.Token, st, mu, rc, syncTracker, logger)
	streams := channel.NewStreams(cfg.Token, st, pr, rc, syncTracker, st.GetDomain, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go obs.Run(ctx)

	go func() {
		if err := dispatcher.Serve(ctx, "0.0.0.0:"+strconv.Itoa(cfg.UpstreamPort)); err != nil && ctx.Err() == nil {
			logger.WithError(err).Error("proxy dispatcher stopped")
		}
	}()

	if os.Getenv("GIN_MODE") == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		response.OK(c, "ok", nil)
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}

	router.GET("/control", func(c *gin.Context) {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		ctl.ServeControl(ctx, ws)
	})
	router.GET("/live-sessions", func(c *gin.Context) {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		streams.ServeLiveSessions(ctx, ws)
	})
	router.GET("/sync-status", func(c *gin.Context) {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		streams.ServeSyncStatus(ctx, ws)
	})
	router.GET("/tunnel-endpoint", func(c *gin.Context) {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		streams.ServeTunnelEndpoint(ctx, ws)
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Infof("command channel listening on %s", cfg.Server.Addr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("command channel server failed")
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("command channel server forced to shut down")
	}

	logger.Info("vpnctl exited")
}

