// cmd/main.go is the application entry point.
// It wires together all layers and starts the HTTP server.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/confbook/confbook/internal/clock"
	"github.com/confbook/confbook/internal/database"
	"github.com/confbook/confbook/internal/handler"
	"github.com/confbook/confbook/internal/repository"
	"github.com/confbook/confbook/internal/service"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

func main() {
	ctx := context.Background()

	// ── 1. Build the booking engine ──────────────────────────────────────
	opts := []service.Option{
		service.WithConfirmationTTL(confirmationTTL()),
	}

	// The persistence mirror is optional: without a configured database the
	// engine runs fully in memory.
	if os.Getenv("DATABASE_URL") != "" || os.Getenv("DB_HOST") != "" {
		pool, err := database.NewPool(ctx)
		if err != nil {
			log.Fatalf("database: %v", err)
		}
		defer pool.Close()

		archive := repository.NewArchive(pool)
		if err := archive.EnsureSchema(ctx); err != nil {
			log.Fatalf("schema: %v", err)
		}
		opts = append(opts, service.WithArchive(archive))
		log.Println("connected to PostgreSQL; persistence mirror enabled")
	} else {
		log.Println("no database configured; running without the persistence mirror")
	}

	svc := service.New(clock.NewSystem(), opts...)
	defer svc.Close()

	bookingHandler := handler.NewBookingHandler(svc)

	// ── 2. Build the router ───────────────────────────────────────────────
	r := chi.NewRouter()

	// Global middleware stack
	r.Use(chimiddleware.Recoverer) // recover from panics, return 500
	r.Use(chimiddleware.RequestID) // attach request IDs
	r.Use(chimiddleware.RealIP)    // trust X-Forwarded-For
	r.Use(handler.Logger)          // structured access log
	r.Use(handler.CORS)            // permissive CORS

	// Health
	r.Get("/health", handler.HealthCheck)

	// API routes
	r.Post("/user", bookingHandler.CreateUser)
	r.Post("/conference", bookingHandler.CreateConference)
	r.Post("/book", bookingHandler.Book)
	r.Post("/cancel", bookingHandler.Cancel)
	r.Post("/confirm", bookingHandler.Confirm)
	r.Get("/booking/{bookingID}", bookingHandler.BookingStatus)
	r.Get("/conference/{name}/bookings", bookingHandler.ConferenceBookings)

	// ── 3. Start server with graceful shutdown ────────────────────────────
	port := getEnv("PORT", "8080")
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Run in background goroutine so we can listen for shutdown signal.
	go func() {
		log.Printf("server listening on http://localhost:%s", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Block until SIGINT or SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("graceful shutdown failed: %v", err)
	}
	log.Println("server stopped")
}

// confirmationTTL reads the confirmation window from the environment;
// defaults to the service's built-in TTL.
func confirmationTTL() time.Duration {
	v := os.Getenv("CONFIRMATION_TTL_SECONDS")
	if v == "" {
		return service.DefaultConfirmationTTL
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		log.Printf("invalid CONFIRMATION_TTL_SECONDS %q; using default", v)
		return service.DefaultConfirmationTTL
	}
	return time.Duration(secs) * time.Second
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
