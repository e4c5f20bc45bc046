//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/askpaper/askpaper/internal/app"
	"github.com/askpaper/askpaper/internal/config"
	"github.com/askpaper/askpaper/internal/testutil"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	testServer    *httptest.Server
	testClient    *testutil.Client
	testValidator *testutil.OpenAPIValidator
	testDB        *pgxpool.Pool

	// llmServer fakes the external chat completions provider.
	llmServer *httptest.Server
	// llmResponse is the canned answer the fake provider returns.
	llmResponse atomic.Value
	// llmRequests counts calls to the fake provider.
	llmRequests atomic.Int64
)

// OpenAPI spec path relative to the tests/integration directory.
const openAPISpecPath = "../../api/openapi/openapi.yaml"

// newTestClient creates a new test client with OpenAPI validation enabled.
// Use this at the beginning of each test that makes API calls.
func newTestClient(t *testing.T) *testutil.Client {
	t.Helper()
	client := testutil.NewClientWithValidator(testServer.URL, testValidator)
	client.SetT(t)
	return client
}

// newTestClientWithoutValidation creates a test client without OpenAPI validation.
// Use this for tests that intentionally test error responses or invalid scenarios.
func newTestClientWithoutValidation() *testutil.Client {
	return testutil.NewClient(testServer.URL)
}

func newFakeLLMServer() *httptest.Server {
	llmResponse.Store("canned answer")
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		llmRequests.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": llmResponse.Load().(string)}},
			},
		})
	}))
}

func TestMain(m *testing.M) {
	ctx := context.Background()

	pgContainer, err := testutil.NewPostgresContainer(ctx)
	if err != nil {
		log.Fatalf("start postgres: %v", err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			log.Printf("terminate postgres: %v", err)
		}
	}()

	migrator, err := migrate.New(
		"file://../../migrations",
		pgContainer.ConnectionString,
	)
	if err != nil {
		log.Fatalf("create migrator: %v", err)
	}
	if err := migrator.Up(); err != nil && err != migrate.ErrNoChange {
		log.Fatalf("run migrations: %v", err)
	}

	llmServer = newFakeLLMServer()
	defer llmServer.Close()

	cfg := &config.Config{
		Environment: config.EnvDevelopment,
		Server: config.ServerConfig{
			Host:         "127.0.0.1",
			Port:         "0",
			MetricsPort:  "0",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		},
		Database: config.DatabaseConfig{
			URL:             pgContainer.ConnectionString,
			MaxOpenConns:    5,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
			ConnectTimeout:  30 * time.Second,
			ConnectAttempts: 3,
		},
		Log: config.LogConfig{
			Level:  "error",
			Format: "text",
		},
		Auth: config.AuthConfig{
			AccessSecret:        "test-access-secret",
			AccessExpireMinutes: 5,
			RefreshSecret:       "test-refresh-secret",
			RefreshExpireDays:   30,
		},
		LLM: config.LLMConfig{
			BaseURL: llmServer.URL,
			Model:   "test-model",
			Timeout: 10 * time.Second,
		},
		DocQA: config.DocQAConfig{
			ChunkSize:       1000,
			ChunkOverlap:    200,
			RetrievalTopK:   3,
			MaxUploadBytes:  1 << 20,
			IndexerWorkers:  1,
			IndexerBatch:    10,
			IndexerInterval: 100 * time.Millisecond,
			IndexerAttempts: 3,
		},
	}

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("create app: %v", err)
	}

	// Create a direct DB connection for tests that need it
	testDB, err = pgxpool.New(ctx, pgContainer.ConnectionString)
	if err != nil {
		log.Fatalf("create test db pool: %v", err)
	}

	if err := seedAccounts(ctx); err != nil {
		log.Fatalf("seed accounts: %v", err)
	}

	testServer = httptest.NewServer(application.Router())

	// Load OpenAPI validator
	testValidator, err = testutil.LoadOpenAPIValidator(openAPISpecPath)
	if err != nil {
		log.Fatalf("load OpenAPI validator: %v", err)
	}

	// Create client with OpenAPI validation enabled
	testClient = testutil.NewClientWithValidator(testServer.URL, testValidator)

	code := m.Run()

	testServer.Close()
	testDB.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown app: %v", err)
	}

	os.Exit(code)
}
