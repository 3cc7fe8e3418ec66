package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"playlog/cache"
	"playlog/config"
	"playlog/db"
	"playlog/logger"
	"playlog/model"
	"playlog/repository"
	"playlog/storage"
)

// Start initializes and runs the collector HTTP server until SIGINT/SIGTERM.
func Start() {
	cfg := config.Load()

	logger.InitLogger(logger.Config{
		Level:      logger.LogLevel(cfg.LogLevel),
		OutputPath: cfg.LogFile,
		MaxSize:    cfg.LogMaxSize,
		MaxBackups: cfg.LogMaxBackups,
		MaxAge:     cfg.LogMaxAge,
	})

	if err := db.ConnectGormDB(cfg); err != nil {
		logger.Fatal("failed to connect to database", logger.ErrorField(err))
	}
	defer db.CloseGormDB()

	if err := db.AutoMigrateModels(&model.Play{}); err != nil {
		logger.Fatal("failed to migrate database", logger.ErrorField(err))
	}

	var nowPlaying *cache.NowPlaying
	if err := db.ConnectRedis(cfg); err != nil {
		logger.Warn("Redis unavailable, now-playing disabled", logger.ErrorField(err))
	} else {
		defer db.CloseRedis()
		nowPlaying = cache.NewNowPlaying(db.RedisClient)
	}

	var archive *storage.Archive
	if cfg.MinioEnabled {
		var err error
		archive, err = storage.NewArchive(cfg)
		if err != nil {
			logger.Fatal("failed to initialize event archive", logger.ErrorField(err))
		}
	}

	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	plays := repository.NewGormPlayRepository(db.GormDB)
	apiHandler, err := NewAPIHandler(
		plays, nowPlaying, hub, archive,
		[]byte(cfg.Secret),
		cfg.AdminUsername, cfg.AdminPassword,
		[]byte(cfg.JWTSecret),
	)
	if err != nil {
		logger.Fatal("failed to initialize handlers", logger.ErrorField(err))
	}

	router := mux.NewRouter()
	router.HandleFunc("/api/events", apiHandler.HandleEvent).Methods(http.MethodPost)
	router.HandleFunc("/api/nowplaying", apiHandler.NowPlayingHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/plays", apiHandler.AuthMiddleware(apiHandler.ListPlaysHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/auth/login", apiHandler.LoginHandler).Methods(http.MethodPost)
	router.HandleFunc("/ws", hub.ServeWS)

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("collector listening", logger.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", logger.ErrorField(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down collector")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("forced shutdown", logger.ErrorField(err))
	}
}
