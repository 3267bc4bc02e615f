/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the stock ledger server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Initialize SQLite store (schema auto-migrated)
  3. Optionally seed the catalog from a JSON document
  4. Configure HTTP router
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port     HTTP server port (default: 8080)
  -db       SQLite database path (default: stock.db)
            Use ":memory:" for an in-memory database
  -catalog  Optional JSON catalog document to load on startup
            (see bom.ParseCatalog for the schema)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  ./server -db="./data/stock.db"
  ./server -db=":memory:" -catalog="./fixtures/catalog.json"

SEE ALSO:
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/stock-ledger/api"
	"github.com/warp/stock-ledger/bom"
	"github.com/warp/stock-ledger/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "stock.db", "SQLite database path")
	catalogPath := flag.String("catalog", "", "optional JSON catalog document to load")
	flag.Parse()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Optional catalog seed
	if *catalogPath != "" {
		if err := seedCatalog(store, *catalogPath); err != nil {
			log.Fatalf("Failed to load catalog %s: %v", *catalogPath, err)
		}
		log.Printf("Loaded catalog from %s", *catalogPath)
	}

	// Initialize handler and router
	handler := api.NewHandler(store)
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
		log.Printf("Stock ledger server starting on http://localhost:%d", *port)
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

func seedCatalog(store *sqlite.Store, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	catalog, err := bom.ParseCatalog(data)
	if err != nil {
		return err
	}

	ctx := context.Background()
	for menuID, lines := range catalog.Recipes {
		if err := store.SaveRecipe(ctx, menuID, lines); err != nil {
			return err
		}
		for _, line := range lines {
			if line.ItemName == "" {
				continue
			}
			if err := store.SaveItem(ctx, line.ItemCode, line.ItemName, line.Spec, decimal.Zero); err != nil {
				return err
			}
		}
	}
	for promoID, comps := range catalog.Promotions {
		if err := store.SavePromotion(ctx, promoID, comps); err != nil {
			return err
		}
	}
	return nil
}
