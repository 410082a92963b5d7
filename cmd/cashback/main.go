package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/iurnickita/cashback/internal/auth"
	"github.com/iurnickita/cashback/internal/config"
	"github.com/iurnickita/cashback/internal/handler"
	"github.com/iurnickita/cashback/internal/jobs"
	"github.com/iurnickita/cashback/internal/lock"
	"github.com/iurnickita/cashback/internal/logger"
	"github.com/iurnickita/cashback/internal/service"
	"github.com/iurnickita/cashback/internal/storage"
	"github.com/iurnickita/cashback/internal/store"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.GetConfig()
	if err != nil {
		return err
	}

	zaplog, err := logger.NewZapLog(cfg.Logger)
	if err != nil {
		return err
	}
	defer zaplog.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := store.NewStore(cfg.Store)
	if err != nil {
		return err
	}
	defer store.Close()

	files, err := storage.NewStorage(cfg.Storage, zaplog)
	if err != nil {
		return err
	}
	if err = files.Start(ctx); err != nil {
		return err
	}

	locker, err := lock.NewLocker(ctx, cfg.Lock, zaplog)
	if err != nil {
		return err
	}
	defer locker.Close()

	auth := auth.NewAuth(cfg.Auth, store, zaplog)
	service := service.NewService(cfg.Service, store, files, locker, zaplog)

	janitor, err := jobs.NewJanitor(cfg.Jobs, store, zaplog)
	if err != nil {
		return err
	}
	janitor.Start()
	defer janitor.Stop()

	zaplog.Info("starting cashback", zap.String("address", cfg.Handler.ServerAddr))
	return handler.Serve(ctx, cfg.Handler, auth, service, zaplog)
}
