// Command relay is the QuantumShield relay process: the WebSocket
// event broker, the friends HTTP surface, and the auth middleware
// behind one gorilla/mux router. Configuration comes from the
// environment via getEnv; missing required config is a log.Fatalf;
// shutdown is graceful via signal.Notify. The client keystore
// (internal/keystore) is client-side and has no server binary.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/quantumshield/relay/internal/auth"
	"github.com/quantumshield/relay/internal/db"
	"github.com/quantumshield/relay/internal/friends"
	"github.com/quantumshield/relay/internal/ratelimit"
	"github.com/quantumshield/relay/internal/relay"
)

func main() {
	log.Println("[Relay] Starting QuantumShield relay...")

	jwtSecret := os.Getenv("JWT_SIGNING_SECRET")
	if jwtSecret == "" {
		log.Fatalf("[Relay] JWT_SIGNING_SECRET environment variable is required")
	}

	database, err := db.NewDB()
	if err != nil {
		log.Fatalf("[Relay] Failed to connect to database: %v", err)
	}
	defer database.Close()

	if err := database.RunMigrations(getEnv("MIGRATIONS_PATH", "migrations")); err != nil {
		log.Fatalf("[Relay] Failed to run migrations: %v", err)
	}

	validator := auth.NewValidator([]byte(jwtSecret))
	originGate := auth.NewOriginGate(splitAndTrim(getEnv("ALLOWED_ORIGINS", "")))
	limiter := ratelimit.NewLimiter(database.Redis)

	friendsService := friends.NewService(database.Postgres)
	relayService := relay.NewService(friendsService, friendsService)
	friendsHandlers := friends.NewHandlers(friendsService, relayService, limiter, validator)

	router := mux.NewRouter()
	router.Use(originGate.Middleware)

	router.HandleFunc("/health", handleHealth(database)).Methods(http.MethodGet)
	router.Handle("/ws", relayService.Handler(validator, originGate)).Methods(http.MethodGet)
	friendsHandlers.Register(router)

	httpServer := &http.Server{
		Addr:         ":" + getEnv("PORT", "8080"),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("[Relay] HTTP/WS server listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[Relay] Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("[Relay] Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Fatalf("[Relay] Server forced to shutdown: %v", err)
	}
	log.Println("[Relay] Exited gracefully")
}

func handleHealth(database *db.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := database.Health(ctx); err != nil {
			http.Error(w, "unhealthy", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func splitAndTrim(csv string) []string {
	if csv == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
