package dashboard

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"arbflow/config"
	"arbflow/logger"
)

func TestNormalizeAddress(t *testing.T) {
	cases := map[string]string{
		"":                               "0.0.0.0:2112",
		"  :9090  ":                      "0.0.0.0:9090",
		"localhost":                      "localhost:2112",
		"0.0.0.0:80":                     "0.0.0.0:80",
		"[::1]:443":                      "[::1]:443",
		"::1":                            "[::1]:2112",
		"*:8080":                         "0.0.0.0:8080",
		"http://13.200.112.203:8080":     "13.200.112.203:8080",
		"https://13.200.112.203":         "13.200.112.203:2112",
		"http://:7070":                   "0.0.0.0:7070",
		"tcp://localhost:5050":           "localhost:5050",
		"https://dashboard.example.com/": "dashboard.example.com:2112",
	}

	for input, want := range cases {
		if got := normalizeAddress(input); got != want {
			t.Fatalf("normalizeAddress(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestNewServerDisabled(t *testing.T) {
	if srv := NewServer(config.MetricsConfig{}, logger.Logger(), nil); srv != nil {
		t.Fatal("expected nil server when metrics are disabled")
	}

	var srv *Server
	if err := srv.Run(context.Background(), "app"); err != nil {
		t.Fatalf("nil server Run returned %v", err)
	}
	if srv.Address() != "" {
		t.Fatal("nil server has an address")
	}
}

func TestNewServerNormalizesConfiguredAddress(t *testing.T) {
	srv := NewServer(config.MetricsConfig{Enabled: true, Address: ":9000"}, logger.Logger(), nil)
	if srv == nil {
		t.Fatal("expected server, got nil")
	}
	if got := srv.Address(); got != "0.0.0.0:9000" {
		t.Fatalf("server address = %q, want %q", got, "0.0.0.0:9000")
	}
}

func TestRoutes(t *testing.T) {
	log := logger.Logger()
	status := func() interface{} {
		return []map[string]interface{}{{"exchange": "binance", "connected": true}}
	}
	srv := NewServer(config.MetricsConfig{Enabled: true, Address: ":0"}, log, status)
	router := srv.router("collector")

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("GET %s returned %d", path, rec.Code)
		}
		return rec
	}

	var health map[string]string
	if err := json.Unmarshal(get("/healthz").Body.Bytes(), &health); err != nil {
		t.Fatalf("decode healthz: %v", err)
	}
	if health["status"] != "ok" || health["app"] != "collector" {
		t.Fatalf("unexpected healthz body: %#v", health)
	}

	if body := get("/metrics").Body.String(); !strings.Contains(body, "go_goroutines") {
		t.Fatalf("metrics output missing collectors: %s", body)
	}

	body := get("/status").Body.String()
	if !strings.Contains(body, `"exchange":"binance"`) || !strings.Contains(body, `"connected":true`) {
		t.Fatalf("unexpected status body: %s", body)
	}

	log.WithComponent("collector").WithFields(logger.Fields{"exchange": "binance"}).Warn("connection lost")
	log.WithComponent("collector").WithFields(logger.Fields{"exchange": "coinbase"}).Warn("connection lost")
	var logs struct {
		Logs []logRecord `json:"logs"`
	}
	if err := json.Unmarshal(get("/logs").Body.Bytes(), &logs); err != nil {
		t.Fatalf("decode logs: %v", err)
	}
	if len(logs.Logs) != 2 || logs.Logs[0].Message != "connection lost" || logs.Logs[0].Component != "collector" {
		t.Fatalf("unexpected logs: %#v", logs.Logs)
	}

	logs.Logs = nil
	if err := json.Unmarshal(get("/logs?exchange=coinbase").Body.Bytes(), &logs); err != nil {
		t.Fatalf("decode logs: %v", err)
	}
	if len(logs.Logs) != 1 || logs.Logs[0].Exchange != "coinbase" {
		t.Fatalf("unexpected filtered logs: %#v", logs.Logs)
	}
}

func TestRunShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	srv := NewServer(config.MetricsConfig{Enabled: true, Address: addr}, logger.Logger(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx, "scanner") }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := http.Get("http://" + addr + "/healthz")
		if err == nil {
			resp.Body.Close()
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server never came up: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
