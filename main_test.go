package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"seqoauth/server"
)

func testConfig(authURI string) server.Config {
	cfg := server.DefaultConfig()
	cfg.Sequencing.ClientID = "demo-app"
	cfg.Sequencing.ClientSecret = "s3cret"
	cfg.Sequencing.AuthURI = authURI
	return cfg
}

func TestRunConnectSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth2/authorize":
			if r.URL.Query().Get("client_id") != "demo-app" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			http.Redirect(w, r, "/login", http.StatusFound)
		case "/login":
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("login"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := testConfig(srv.URL + "/oauth2/authorize")

	if err := runConnect(context.Background(), cfg, logger, nil); err != nil {
		t.Fatalf("runConnect returned error: %v", err)
	}
}

func TestRunConnectFailureStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := testConfig(srv.URL)

	if err := runConnect(context.Background(), cfg, logger, nil); err == nil {
		t.Fatalf("expected error but got nil")
	}
}

func TestValidateURLAcceptsClientErrors(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusMethodNotAllowed)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
	}))
	defer srv.Close()

	if err := validateURL(context.Background(), srv.URL); err != nil {
		t.Fatalf("4xx should count as reachable: %v", err)
	}
	status.Store(http.StatusBadGateway)
	if err := validateURL(context.Background(), srv.URL); err == nil {
		t.Fatalf("expected error for 5xx")
	}
}

func TestRunSetupWritesLoadableConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "config.yaml")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	input := strings.Join([]string{
		"y",        // dev mode
		"",         // public url
		"",         // listen addr
		"demo-app", // client id
		"s3cret",   // client secret
		"",         // redirect uri
		"demo",     // scope
	}, "\n") + "\n"

	cfg, err := runSetup(strings.NewReader(input), io.Discard, path, logger)
	if err != nil {
		t.Fatalf("runSetup returned error: %v", err)
	}
	if cfg.Sequencing.ClientID != "demo-app" || cfg.Sequencing.ClientSecret != "s3cret" {
		t.Fatalf("credentials not persisted: %+v", cfg.Sequencing)
	}
	if cfg.Sequencing.Scope != "demo" {
		t.Fatalf("scope not persisted, got %q", cfg.Sequencing.Scope)
	}
	if len(cfg.Server.SessionSecret) != 64 {
		t.Fatalf("expected generated session secret, got %q", cfg.Server.SessionSecret)
	}
	if cfg.Server.SessionTTL != server.DefaultSessionTTL {
		t.Fatalf("session ttl lost in round trip, got %s", cfg.Server.SessionTTL)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file not written: %v", err)
	}

	if _, err := runSetup(strings.NewReader(input), io.Discard, path, logger); err == nil {
		t.Fatalf("expected runSetup to refuse an existing config file")
	}
}

func TestRunSetupRejectsMissingCredentials(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	if _, err := runSetup(strings.NewReader("\n\n\n"), io.Discard, path, logger); err == nil {
		t.Fatalf("expected error without client credentials")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("no config file should be written, stat returned %v", err)
	}
}

func TestNewSessionSecret(t *testing.T) {
	a, err := newSessionSecret()
	if err != nil {
		t.Fatalf("newSessionSecret returned error: %v", err)
	}
	b, err := newSessionSecret()
	if err != nil {
		t.Fatalf("newSessionSecret returned error: %v", err)
	}
	if len(a) != 64 || a == b {
		t.Fatalf("expected two distinct 64 char secrets, got %q and %q", a, b)
	}
}

func TestCheckEndpoints(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/token" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusMethodNotAllowed)
	}))
	defer srv.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := testConfig(srv.URL + "/authorize")
	cfg.Sequencing.TokenURI = srv.URL + "/token"
	cfg.Sequencing.APIURI = srv.URL + "/api"

	errs := checkEndpoints(context.Background(), cfg, logger)
	if len(errs) != 1 || !strings.Contains(errs[0].Error(), "token endpoint") {
		t.Fatalf("expected only the token endpoint to fail, got %v", errs)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	_, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"), logger)
	if err == nil || !strings.Contains(err.Error(), "seqoauth init") {
		t.Fatalf("expected hint to run init, got %v", err)
	}
}

func TestLoadEnvFile(t *testing.T) {
	if err := loadEnvFile(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("missing env file should be ignored: %v", err)
	}

	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("SEQOAUTH_TEST_VALUE=from-dotenv\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("SEQOAUTH_TEST_VALUE", "")
	os.Unsetenv("SEQOAUTH_TEST_VALUE")

	if err := loadEnvFile(path); err != nil {
		t.Fatalf("loadEnvFile returned error: %v", err)
	}
	if got := os.Getenv("SEQOAUTH_TEST_VALUE"); got != "from-dotenv" {
		t.Fatalf("expected value from env file, got %q", got)
	}
}

func TestNewLogWriter(t *testing.T) {
	if w := newLogWriter(server.LoggingConfig{}); w != nil {
		t.Fatalf("expected no writer without a file")
	}

	path := filepath.Join(t.TempDir(), "seqoauth.log")
	w := newLogWriter(server.LoggingConfig{File: path, MaxSizeMB: 1})
	if w == nil {
		t.Fatalf("expected a writer")
	}
	logger := newLogger(w, slog.LevelInfo)
	logger.Info("hello")
	if err := w.Close(); err != nil {
		t.Fatalf("close log writer: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"hello"`) {
		t.Fatalf("log line missing, got %s", data)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"":        slog.LevelInfo,
		"INFO":    slog.LevelInfo,
		"debug":   slog.LevelDebug,
		"Warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"ERR":     slog.LevelError,
	}

	for input, want := range tests {
		got, err := parseLogLevel(input)
		if err != nil {
			t.Fatalf("parseLogLevel(%q) returned error: %v", input, err)
		}
		if got != want {
			t.Fatalf("parseLogLevel(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestParseLogLevelInvalid(t *testing.T) {
	if _, err := parseLogLevel("trace"); err == nil {
		t.Fatalf("expected error for unsupported level")
	}
}
