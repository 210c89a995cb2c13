package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/theheadmen/studfund/internal/dbconnector"
	"github.com/theheadmen/studfund/internal/server"
	"github.com/theheadmen/studfund/internal/serverconfig"
)

func main() {
	decimal.MarshalJSONWithoutQuotes = true

	serverconfig.LoadDotEnv(".env")
	configStore := serverconfig.NewConfigStore()
	if err := configStore.ParseFlags(os.Args[1:]); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	setupLogging(configStore)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := dbconnector.OpenDBConnect(configStore.FlagDatabase)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := db.DBInitialize(); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	fs, err := NewFundraisingSystem(ctx, configStore, db)
	if err != nil {
		log.Fatalf("Failed to set up services: %v", err)
	}
	defer fs.Close()

	srv := fs.Server.MakeServer(configStore.FlagRunAddr)
	sweeperDone := server.MakeGorutineToSweep(ctx, fs.Service, configStore.SweepInterval)

	go func() {
		log.WithField("addr", configStore.FlagRunAddr).
			WithField("creation_policy", configStore.CreationPolicy).
			WithField("start_policy", configStore.StartPolicy).
			Info("starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
	<-sweeperDone
}
