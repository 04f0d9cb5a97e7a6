package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/classhive/collab/internal/chat"
	"github.com/classhive/collab/internal/config"
	"github.com/classhive/collab/internal/db"
	"github.com/classhive/collab/internal/feed"
	"github.com/classhive/collab/internal/forum"
	"github.com/classhive/collab/internal/httpapi"
	"github.com/classhive/collab/internal/httpapi/handlers"
	"github.com/classhive/collab/internal/logging"
	"github.com/classhive/collab/internal/notifications"
	"github.com/classhive/collab/internal/presence"
	"github.com/classhive/collab/internal/store/rabbitmq"
	"github.com/classhive/collab/internal/store/redisstore"
	"github.com/classhive/collab/internal/users"
)

func main() {
	cfg := config.Load()

	logger := logging.New(cfg.LogLevel)
	defer logger.Sync()

	gdb := db.Connect(cfg.DBDSN)
	if err := db.Migrate(gdb); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)

	publisher, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
	if err != nil {
		logger.Fatal("rabbit connect", zap.Error(err))
	}
	defer publisher.Close()

	broker := feed.NewBroker(cfg.FeedBuffer, logger)
	registry := presence.NewRegistry(cfg.PresenceTTL, broker, logger)

	usersRepo := users.NewRepo(gdb)
	chatRepo := chat.NewRepo(gdb)
	forumRepo := forum.NewRepo(gdb)
	notifRepo := notifications.NewRepo(gdb)

	chatSvc := chat.NewService(chatRepo, usersRepo, broker, logger)
	notifSvc := notifications.NewService(notifRepo, usersRepo, chatRepo, forumRepo, broker, rds, publisher, logger)
	forumSvc := forum.NewService(forumRepo, broker, notifSvc, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go registry.Run(ctx, cfg.PresenceSweep)

	dispatcher := notifications.NewDispatcher(notifSvc, broker, logger)
	go dispatcher.Run(ctx)

	h := &handlers.Handler{
		Cfg:      cfg,
		Logger:   logger,
		Users:    usersRepo,
		Chat:     chatSvc,
		Forum:    forumSvc,
		Notifs:   notifSvc,
		Presence: registry,
		Broker:   broker,
	}

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: httpapi.NewRouter(h, logger),
	}

	go func() {
		logger.Info("server started", zap.String("addr", cfg.ServerAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("server shutting down")

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
}
