// Command bunstore-server hosts the document database over the TCP wire
// protocol, wiring internal/config and internal/logger to the storage
// and server packages and running the accept loop until an interrupt
// or terminate signal arrives.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kartikbazzad/bunstore/internal/config"
	"github.com/kartikbazzad/bunstore/internal/logger"
	"github.com/kartikbazzad/bunstore/server"
	"github.com/kartikbazzad/bunstore/storage"
)

func main() {
	cfg, err := config.LoadServerConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger.Init(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	logger.Info("starting bunstore-server",
		"host", cfg.Host, "port", cfg.Port, "storagePath", cfg.StoragePath,
		"requireAuthentication", cfg.RequireAuthentication)

	store := storage.NewPersistentStore(storage.PersistentStoreOptions{
		BaseDir:       cfg.StoragePath,
		CacheMaxCount: cfg.MaxCacheItemCount,
		CacheTTL:      time.Duration(cfg.DefaultCacheTTLMilliseconds) * time.Millisecond,
	})
	defer store.Close()

	ctx := context.Background()
	if err := store.Initialize(ctx); err != nil {
		logger.Error("initialize store", "error", err)
		os.Exit(1)
	}

	engine := server.NewEngine(store, store.GetAll)

	var auth server.AuthChecker
	if cfg.RequireAuthentication {
		auth = server.NewStaticPasswordAuth(cfg.MasterPassword)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	tcpServer := server.NewTCPServer(addr, engine, auth, cfg.MaxConcurrentConnections)
	if err := tcpServer.Start(); err != nil {
		logger.Error("start tcp server", "error", err)
		os.Exit(1)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down bunstore-server")
	if err := tcpServer.Stop(); err != nil {
		logger.Error("stop tcp server", "error", err)
	}
	if err := store.SaveChanges(ctx); err != nil {
		logger.Error("save changes", "error", err)
	}
	logger.Info("bunstore-server stopped")
}
