/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the pension contribution engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Initialize SQLite store
  3. Build plan processors from definitions (file or built-in defaults)
  4. Initialize processors with shared collaborators
  5. Configure HTTP router
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port     HTTP server port (default: 8080)
  -db       SQLite database path (default: pension.db)
            Use ":memory:" for in-memory database
  -env      Environment: sandbox or production (default: sandbox)
  -account  Employer account number (required for production submission)
  -plans    Plan definition file (.yaml or .json); empty uses built-ins

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with built-in plan definitions
  ./server -db="./data/pension.db"

  # Run in production mode with an employer account
  ./server -env=production -account="RP-0001-123456"

  # Run with custom plan definitions
  ./server -plans="./plans.yaml"

SEE ALSO:
  - api/server.go: Router configuration
  - factory/plan.go: Plan definitions
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/pension-engine/api"
	"github.com/warp/pension-engine/factory"
	"github.com/warp/pension-engine/pension"
	"github.com/warp/pension-engine/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "pension.db", "SQLite database path")
	env := flag.String("env", "sandbox", "Environment: sandbox or production")
	account := flag.String("account", "", "Employer account number")
	plansPath := flag.String("plans", "", "Plan definition file (.yaml or .json)")
	flag.Parse()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Build processors from definitions
	var processors []pension.PlanProcessor
	if *plansPath != "" {
		processors, err = factory.LoadFile(*plansPath)
	} else {
		processors, err = factory.DefaultPlans()
	}
	if err != nil {
		log.Fatalf("Failed to build plan processors: %v", err)
	}

	// Initialize processors with shared collaborators
	logger := pension.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	cfg := pension.Config{
		Environment:           pension.Environment(*env),
		EmployerAccountNumber: *account,
		Logger:                logger,
		Calculations:          store,
		Remittances:           store,
	}
	for _, p := range processors {
		if err := p.Initialize(cfg); err != nil {
			log.Fatalf("Failed to initialize %s processor: %v", p.Type(), err)
		}
	}

	// Initialize handler and router
	handler := api.NewHandler(processors, store, logger)
	router := api.NewRouter(handler)

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server starting on http://localhost:%d (%s)", *port, *env)
		log.Printf("API available at http://localhost:%d/api", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
