package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/courier-chat/courier/internal/config"
	"github.com/courier-chat/courier/internal/database"
	postgresrepo "github.com/courier-chat/courier/internal/repository/postgres"
	"github.com/courier-chat/courier/internal/service"
	"github.com/courier-chat/courier/internal/transport/http/handlers"
	"github.com/courier-chat/courier/internal/transport/http/middleware"
	"github.com/courier-chat/courier/internal/transport/ws"
)

func main() {
	cfg := config.Load()

	// Database
	pool, err := database.Connect(context.Background(), cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()
	log.Println("Connected to database")

	// Repositories
	conversationRepo := postgresrepo.NewConversationRepo(pool)
	messageRepo := postgresrepo.NewMessageRepo(pool)
	chatLogRepo := postgresrepo.NewChatLogRepo(pool)

	// Core services
	registry := service.NewRegistry()
	reconciler := service.NewReconciler(messageRepo)
	router := service.NewRouter(registry, conversationRepo, messageRepo, chatLogRepo, reconciler)

	// Handlers
	internalHandler := handlers.NewInternalHandler(registry)
	internal := middleware.Internal(cfg.InternalToken)

	// WebSocket listener: the message server proper.
	wsMux := http.NewServeMux()
	wsMux.HandleFunc("GET /ws", ws.ServeWS(router, registry, cfg.JWTSecret))

	// HTTP listener: health + trusted ingress for the REST layer.
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status": "ok"}`))
	})
	mux.Handle("POST /api/internal/broadcast-profile-update", internal(http.HandlerFunc(internalHandler.BroadcastProfileUpdate)))
	mux.Handle("POST /api/internal/account-deleted", internal(http.HandlerFunc(internalHandler.BroadcastAccountDeleted)))

	var g errgroup.Group
	g.Go(func() error {
		addr := fmt.Sprintf(":%s", cfg.WSPort)
		log.Printf("WebSocket server running on port %s", cfg.WSPort)
		return http.ListenAndServe(addr, wsMux)
	})
	g.Go(func() error {
		addr := fmt.Sprintf(":%s", cfg.HTTPPort)
		log.Printf("Server is running on port %s", cfg.HTTPPort)
		return http.ListenAndServe(addr, mux)
	})
	log.Fatal(g.Wait())
}
