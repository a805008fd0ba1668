//go:build integration
// +build integration

package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/liamcoop/recalc/internal/config"
)

// startPostgres returns the URL of a fresh PostgreSQL container
func startPostgres(t *testing.T) (string, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "recalc_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	url := fmt.Sprintf("postgres://test:test@%s:%s/recalc_test?sslmode=disable", host, port.Port())
	return url, func() { container.Terminate(ctx) }
}

func TestEndToEndWithPostgres(t *testing.T) {
	url, cleanup := startPostgres(t)
	defer cleanup()

	cfg := config.Default()
	cfg.Database.URL = url
	cfg.Database.AutoMigrate = true

	server, err := NewServer(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewServer() failed: %v", err)
	}
	ts := httptest.NewServer(server)
	baseURL := ts.URL + "/api/v1"

	t.Log("Step 1: Check health")
	status, body := makeRequest(t, "GET", baseURL+"/health", nil)
	if status != http.StatusOK || body["storage"] != "postgres" {
		t.Fatalf("health = %d %v", status, body)
	}

	t.Log("Step 2: Store a linked record")
	status, _ = makeRequest(t, "PUT", baseURL+"/records/project/PRJ-7", map[string]any{
		"name":    "Mill Lane",
		"address": "7 Mill Lane",
	})
	if status != http.StatusOK {
		t.Fatalf("put record status = %d", status)
	}

	t.Log("Step 3: Create a calculator")
	def := map[string]any{
		"name":   "pm",
		"fields": []map[string]any{{"name": "renovation"}, {"name": "project_management"}},
		"computations": []map[string]any{{
			"name":     "calculate_project_management",
			"kind":     "cel",
			"requires": []string{"renovation"},
			"outputs":  []map[string]any{{"field": "project_management", "expr": "doc.renovation * 0.10"}},
		}},
		"bindings": []map[string]any{{"trigger": "renovation", "computations": []string{"calculate_project_management"}}},
	}
	status, body = makeRequest(t, "POST", baseURL+"/calculators", def)
	if status != http.StatusCreated {
		t.Fatalf("create calculator = %d %v", status, body)
	}

	t.Log("Step 4: Resolve the record through the default calculator")
	id := createSession(t, baseURL, nil)
	status, body = makeRequest(t, "PUT", baseURL+"/sessions/"+id+"/fields/project", map[string]any{"value": "PRJ-7"})
	if status != http.StatusOK {
		t.Fatalf("set project = %d %v", status, body)
	}
	if got := body["values"].(map[string]any)["forecast_name"]; got != "Mill Lane - 7 Mill Lane" {
		t.Errorf("forecast_name = %v", got)
	}

	ts.Close()
	server.Close()

	t.Log("Step 5: Restart and find the calculator again")
	server, err = NewServer(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewServer() after restart failed: %v", err)
	}
	ts = httptest.NewServer(server)
	defer func() {
		ts.Close()
		server.Close()
	}()

	status, body = makeRequest(t, "GET", ts.URL+"/api/v1/calculators", nil)
	if status != http.StatusOK {
		t.Fatalf("list calculators = %d", status)
	}
	if n := len(body["calculators"].([]any)); n != 2 {
		t.Errorf("got %d calculators after restart, want 2", n)
	}

	status, _ = makeRequest(t, "GET", ts.URL+"/api/v1/records/project/PRJ-7", nil)
	if status != http.StatusOK {
		t.Errorf("record lookup after restart = %d", status)
	}
}
