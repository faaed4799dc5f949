package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cidermill-sync-server/internal/config"
	"cidermill-sync-server/internal/gateway"
	"cidermill-sync-server/internal/handler"
	"cidermill-sync-server/internal/middleware"
	"cidermill-sync-server/internal/repository"
	"cidermill-sync-server/internal/service"
	"cidermill-sync-server/internal/websocket"

	"github.com/gorilla/mux"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	couchURL := fmt.Sprintf("http://%s:%s@%s:%s",
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
	)

	stores, err := repository.Open(
		repository.Backend(cfg.Storage.Backend),
		repository.CouchOptions{URL: couchURL, DBName: cfg.Database.Name},
		cfg.Storage.SQLitePath,
	)
	if err != nil {
		log.Fatalf("Failed to open storage backend %q: %v", cfg.Storage.Backend, err)
	}

	wsManager := websocket.NewManager(
		cfg.WebSocket.MaxConnPerOperator,
		cfg.WebSocket.MaxMessageSize,
		cfg.WebSocket.WriteWait,
		cfg.WebSocket.PongWait,
		cfg.WebSocket.PingPeriod,
	)
	go wsManager.Run()

	draftService := service.NewDraftService(stores.Drafts, cfg.Storage.MaxStorageBytes, cfg.Storage.MaxRetainedPressRuns)
	queueService := service.NewSyncQueueService(stores.Queue)
	conflictService := service.NewConflictService(stores.Conflicts)
	upstream := gateway.NewHTTPGateway(cfg.Upstream.BaseURL, cfg.Upstream.Token)
	syncService := service.NewSyncService(
		draftService,
		queueService,
		conflictService,
		service.NewConflictDetector(),
		service.NewConflictResolver(),
		upstream,
		wsManager,
	)

	wsManager.SetMessageHandler(handler.NewWebSocketMessageHandler(syncService))

	draftHandler := handler.NewDraftHandler(draftService)
	queueHandler := handler.NewQueueHandler(queueService)
	syncHandler := handler.NewSyncHandler(syncService, conflictService)
	wsHandler := handler.NewWebSocketHandler(
		wsManager,
		cfg.Auth.JWTSecret,
		cfg.WebSocket.ReadBufferSize,
		cfg.WebSocket.WriteBufferSize,
	)

	r := mux.NewRouter()

	r.Use(middleware.LoggerMiddleware())
	r.Use(middleware.CORSMiddleware(
		cfg.CORS.AllowedOrigins,
		cfg.CORS.AllowedMethods,
		cfg.CORS.AllowedHeaders,
	))

	api := r.PathPrefix("/api/v1").Subrouter()

	protected := api.PathPrefix("").Subrouter()
	protected.Use(middleware.AuthMiddleware(cfg.Auth.JWTSecret))

	protected.HandleFunc("/pressruns", draftHandler.Create).Methods("POST", "OPTIONS")
	protected.HandleFunc("/pressruns", draftHandler.List).Methods("GET", "OPTIONS")
	protected.HandleFunc("/pressruns/{id}", draftHandler.Get).Methods("GET", "OPTIONS")
	protected.HandleFunc("/pressruns/{id}", draftHandler.Update).Methods("PUT", "OPTIONS")
	protected.HandleFunc("/pressruns/{id}", draftHandler.Delete).Methods("DELETE", "OPTIONS")
	protected.HandleFunc("/pressruns/{id}/loads", draftHandler.AddLoad).Methods("POST", "OPTIONS")
	protected.HandleFunc("/pressruns/{id}/loads/{loadId}", draftHandler.UpdateLoad).Methods("PUT", "OPTIONS")
	protected.HandleFunc("/pressruns/{id}/loads/{loadId}", draftHandler.RemoveLoad).Methods("DELETE", "OPTIONS")

	protected.HandleFunc("/queue", queueHandler.Enqueue).Methods("POST", "OPTIONS")
	protected.HandleFunc("/queue", queueHandler.List).Methods("GET", "OPTIONS")
	protected.HandleFunc("/queue/{id}", queueHandler.Update).Methods("PUT", "OPTIONS")
	protected.HandleFunc("/queue/{id}", queueHandler.Remove).Methods("DELETE", "OPTIONS")
	protected.HandleFunc("/queue", queueHandler.Clear).Methods("DELETE", "OPTIONS")

	protected.HandleFunc("/sync/pressruns/{id}", syncHandler.SyncPressRun).Methods("POST", "OPTIONS")
	protected.HandleFunc("/sync/detect/{id}", syncHandler.Detect).Methods("GET", "OPTIONS")
	protected.HandleFunc("/conflicts", syncHandler.ListConflicts).Methods("GET", "OPTIONS")
	protected.HandleFunc("/conflicts/{id}/resolve", syncHandler.ResolveConflict).Methods("POST", "OPTIONS")
	protected.HandleFunc("/conflicts/resolved", syncHandler.ClearResolvedConflicts).Methods("DELETE", "OPTIONS")

	r.HandleFunc("/ws", wsHandler.HandleConnection)

	r.HandleFunc("/health", healthHandler).Methods("GET")

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)

	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting Cidermill Sync Server on %s (env: %s, storage: %s)", addr, cfg.Server.Env, cfg.Storage.Backend)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped gracefully")
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy","service":"cidermill-sync-server"}`))
}
