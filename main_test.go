package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/wricardo/quizrooms/config"
	"github.com/wricardo/quizrooms/transport/mcp"
)

func TestConstants(t *testing.T) {
	if Version == "" {
		t.Error("Version should not be empty")
	}
	if AppName != "Quiz Rooms Server" {
		t.Errorf("Expected app name 'Quiz Rooms Server', got %s", AppName)
	}
}

// parse runs the command line with args and returns the loaded configuration
func parse(t *testing.T, args ...string) (config.Config, error) {
	t.Helper()

	var cfg config.Config
	var loadErr error
	capture := func(ctx context.Context, c *cli.Command) error {
		cfg, loadErr = loadConfig(c)
		return nil
	}

	cmd := newCommand()
	cmd.Action = capture
	for _, sub := range cmd.Commands {
		sub.Action = capture
	}

	if err := cmd.Run(context.Background(), append([]string{"quizrooms"}, args...)); err != nil {
		t.Fatalf("command failed: %v", err)
	}
	return cfg, loadErr
}

func TestLoadConfig_Flags(t *testing.T) {
	cfg, err := parse(t, "--addr", "127.0.0.1:9090", "--debug")
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9090 {
		t.Errorf("Expected 127.0.0.1:9090, got %s", cfg.Server.Addr())
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Expected debug level, got %s", cfg.Logging.Level)
	}
	if cfg.Tunnel.Enabled {
		t.Error("Tunnel should be disabled by default")
	}
}

func TestLoadConfig_Subcommand(t *testing.T) {
	cfg, err := parse(t, "serve", "--addr", ":7070")
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("Expected port 7070, got %d", cfg.Server.Port)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	t.Setenv("NGROK_AUTHTOKEN", "")
	t.Setenv("QUIZ_TUNNEL_AUTH_TOKEN", "")

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"address without port", []string{"--addr", "localhost"}, "invalid --addr"},
		{"non numeric port", []string{"--addr", "localhost:http"}, "invalid --addr port"},
		{"tunnel without token", []string{"--ngrok"}, "tunnel.auth_token"},
		{"missing config file", []string{"--config", "/non/existent/quizrooms.yaml"}, "reading config file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parse(t, tt.args...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func testConfig(t *testing.T) config.Config {
	cfg := config.Default()
	cfg.Catalog.Dir = "configs/catalog"
	cfg.Results.Dir = t.TempDir()
	return cfg
}

func TestInitializeServices(t *testing.T) {
	svc, err := initializeServices(testConfig(t), zap.NewNop(), newRegistry())
	if err != nil {
		t.Fatalf("Failed to initialize services: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.start(ctx)
	defer svc.stop()

	srv := httptest.NewServer(svc.handler)
	defer srv.Close()

	t.Run("health", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/api/health")
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("Expected 200, got %d", resp.StatusCode)
		}
	})

	t.Run("game types come from the catalog", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/api/game-types")
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()

		var body struct {
			Count int `json:"count"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		if body.Count != 2 {
			t.Errorf("Expected 2 game types, got %d", body.Count)
		}
	})

	t.Run("results are served when recorded", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/api/results")
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("Expected 200, got %d", resp.StatusCode)
		}
	})

	t.Run("metrics", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/metrics")
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()
		data, _ := io.ReadAll(resp.Body)
		if !strings.Contains(string(data), "quizrooms_rooms_active") {
			t.Error("Expected quizrooms_rooms_active in metrics output")
		}
	})
}

func TestInitializeServices_InvalidCatalogDir(t *testing.T) {
	cfg := testConfig(t)
	cfg.Catalog.Dir = "/non/existent/path"

	if _, err := initializeServices(cfg, zap.NewNop(), newRegistry()); err == nil {
		t.Error("Expected error for non-existent catalog directory")
	}
}

func TestInitializeServices_ClientScoring(t *testing.T) {
	cfg := testConfig(t)
	cfg.Scoring.Mode = config.ScoringClient
	cfg.Catalog.Dir = ""
	cfg.Results.Dir = ""

	svc, err := initializeServices(cfg, zap.NewNop(), newRegistry())
	if err != nil {
		t.Fatalf("Failed to initialize services: %v", err)
	}
	defer svc.stop()

	rec := httptest.NewRecorder()
	svc.handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/results", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 without a recorder, got %d", rec.Code)
	}
}

func TestMCPHandler(t *testing.T) {
	handler := mcpHandler(mcp.NewClient("http://127.0.0.1:1"))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/mcp", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	body := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","capabilities":{},"clientInfo":{"name":"test","version":"1.0.0"}}}`
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/mcp", strings.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Quiz Rooms") {
		t.Errorf("Expected server name in initialize response, got %s", rec.Body.String())
	}
}
