package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pyr33x/goqtt/internal/auth"
	"github.com/pyr33x/goqtt/internal/broker"
	"github.com/pyr33x/goqtt/internal/config"
	"github.com/pyr33x/goqtt/internal/logger"
	"github.com/pyr33x/goqtt/internal/store"
	"github.com/pyr33x/goqtt/internal/transport"
)

func gracefulShutdown(log *logger.Logger, adapters []transport.Adapter, cancel context.CancelFunc, done chan struct{}) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	log.Info("graceful shutdown triggered")

	defer cancel()
	for _, a := range adapters {
		if err := a.Stop(); err != nil {
			log.Error("error stopping listener", logger.ErrorAttr(err))
		}
	}
	time.Sleep(1 * time.Second)

	close(done)
}

func main() {
	cfg, err := config.Load("config.yml")
	if err != nil {
		panic(err)
	}

	logCfg := logger.DevelopmentConfig()
	if cfg.Log.Environment == "production" {
		logCfg = logger.ProductionConfig()
	}
	logCfg.Component = cfg.Name
	log := logger.New(logCfg)
	logger.InitGlobalLogger(logCfg)

	var authHook auth.Hook = auth.AllowAll{}
	var persist store.Hook = store.Memory{}

	if cfg.Auth.Mode == "sqlite" {
		sqlStore, err := store.OpenSQLite(cfg.Auth.DBPath)
		if err != nil {
			log.Fatal("failed to open sqlite store", logger.ErrorAttr(err))
		}
		persist = sqlStore

		db, err := sql.Open("sqlite3", cfg.Auth.DBPath)
		if err != nil {
			log.Fatal("failed to open sqlite auth db", logger.ErrorAttr(err))
		}
		authHook = auth.NewSQLStore(db)
	}

	b := broker.New(authHook, persist, cfg.Capabilities(), log)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{}, 1)

	var adapters []transport.Adapter
	if cfg.TCP.Enabled {
		adapters = append(adapters, transport.NewTCP(cfg.TCP.Port, b, log))
	}
	if cfg.WebSocket.Enabled {
		adapters = append(adapters, transport.NewWS(":"+cfg.WebSocket.Port, cfg.WebSocket.Path, b, log))
	}

	for _, a := range adapters {
		a := a
		go func() {
			if err := a.Start(ctx); err != nil {
				log.Fatal("listener error", logger.ErrorAttr(err))
			}
		}()
	}
	log.Info("broker started", logger.String("name", cfg.Name), logger.String("version", cfg.Version))

	go gracefulShutdown(log, adapters, cancel, done)

	<-done
	log.Info("graceful shutdown complete")
}
