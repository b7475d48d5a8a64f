//go:build integration

package integration

import (
	"context"
	"log"
	"os"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/NerdyNot/NerdyOps/internal/app"
	"github.com/NerdyNot/NerdyOps/internal/repositories"
)

// Global test-level variables
var (
	pool      *pgxpool.Pool
	agentRepo repositories.AgentRepository
	taskRepo  repositories.TaskRepository
)

// TestMain connects to the database named by TEST_DB_URL once for all
// integration tests in this package.
func TestMain(m *testing.M) {
	dbURL := os.Getenv("TEST_DB_URL")
	if dbURL == "" {
		log.Fatal("TEST_DB_URL env var is required for integration tests")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var err error
	pool, err = pgxpool.Connect(ctx, dbURL)
	if err != nil {
		log.Fatalf("connect to test database: %v", err)
	}

	application := &app.App{DB: pool}
	if err := application.EnsureSchema(ctx); err != nil {
		log.Fatalf("ensure schema: %v", err)
	}

	agentRepo = repositories.NewAgentRepository(pool)
	taskRepo = repositories.NewTaskRepository(pool)

	code := m.Run()

	pool.Close()
	os.Exit(code)
}
