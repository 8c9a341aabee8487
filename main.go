// Command seqoauth serves a small web app that signs users in with their
// Sequencing.com account and lists their genome files.
//
// Usage:
//
//	seqoauth [flags] [serve|init|check|connect]
//
// serve is the default. init writes a config file through a short
// questionnaire, check loads the config and pings the Sequencing endpoints,
// and connect follows the login redirect once to confirm the client is known.
package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"crypto/tls"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/acme/autocert"
	"gopkg.in/natefinch/lumberjack.v2"
	"gopkg.in/yaml.v3"

	"seqoauth/client"
	"seqoauth/server"
)

const (
	sweepInterval   = time.Minute
	shutdownTimeout = 15 * time.Second
	maxRedirects    = 10
)

func main() {
	configPath := flag.String("config", envOr("SEQOAUTH_CONFIG", "config.yaml"), "Path to YAML config")
	envFile := flag.String("env-file", ".env", "Optional dotenv file loaded before the config")
	logLevel := flag.String("log-level", "info", "Logging level (debug, info, warn, error)")
	flag.Parse()

	level, err := parseLogLevel(*logLevel)
	if err != nil {
		log.Fatalf("invalid log level %q: %v", *logLevel, err)
	}
	logger := newLogger(os.Stdout, level)

	if err := loadEnvFile(*envFile); err != nil {
		log.Fatalf("load env file: %v", err)
	}

	cmd := "serve"
	if flag.NArg() > 0 {
		cmd = flag.Arg(0)
	}

	if cmd == "init" {
		if _, err := runSetup(os.Stdin, os.Stdout, *configPath, logger); err != nil {
			log.Fatalf("init: %v", err)
		}
		return
	}

	cfg, err := loadConfig(*configPath, logger)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if w := newLogWriter(cfg.Logging); w != nil {
		defer w.Close()
		logger = newLogger(io.MultiWriter(os.Stdout, w), level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case "serve":
		err = serve(ctx, cfg, logger)
	case "check":
		err = errors.Join(checkEndpoints(ctx, cfg, logger)...)
	case "connect":
		err = runConnect(ctx, cfg, logger, nil)
	default:
		err = fmt.Errorf("unknown command %q, want serve, init, check or connect", cmd)
	}
	if err != nil {
		logger.Error(cmd+" failed", "error", err)
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg server.Config, logger *slog.Logger) error {
	for _, err := range checkEndpoints(ctx, cfg, logger) {
		logger.Warn("starting anyway, login or file listing may fail", "error", err)
	}

	application, err := server.NewApp(cfg, logger)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}

	stopSweep := make(chan struct{})
	defer close(stopSweep)
	application.Store.StartSweeper(stopSweep, sweepInterval, logger)

	listeners := newListeners(cfg, application.Routes())
	errc := make(chan error, len(listeners))
	for _, l := range listeners {
		logger.Info("server listening", "addr", l.srv.Addr, "tls", l.tls, "public_url", cfg.Server.PublicURL)
		go func(l listener) {
			var err error
			if l.tls {
				err = l.srv.ListenAndServeTLS("", "")
			} else {
				err = l.srv.ListenAndServe()
			}
			if !errors.Is(err, http.ErrServerClosed) {
				errc <- fmt.Errorf("listen %s: %w", l.srv.Addr, err)
			}
		}(l)
	}

	select {
	case <-ctx.Done():
	case err = <-errc:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, l := range listeners {
		_ = l.srv.Shutdown(shutdownCtx)
	}
	return err
}

type listener struct {
	srv *http.Server
	tls bool
}

// newListeners returns one plain listener in dev mode. In production it
// returns the autocert HTTPS listener plus a plain one that answers ACME
// challenges and redirects everything else.
func newListeners(cfg server.Config, handler http.Handler) []listener {
	if cfg.Server.DevMode {
		return []listener{{srv: &http.Server{
			Addr:         cfg.Server.DevListenAddr,
			Handler:      handler,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 2 * cfg.Sequencing.HTTPTimeout,
		}}}
	}

	m := &autocert.Manager{
		Cache:      autocert.DirCache(cfg.Server.TLS.CacheDir),
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(cfg.Server.TLS.Domains...),
		Email:      cfg.Server.TLS.Email,
	}
	return []listener{
		{srv: &http.Server{
			Addr:    cfg.Server.HTTPListenAddr,
			Handler: m.HTTPHandler(http.HandlerFunc(redirectToHTTPS)),
		}},
		{srv: &http.Server{
			Addr:      cfg.Server.HTTPSListenAddr,
			Handler:   handler,
			TLSConfig: &tls.Config{GetCertificate: m.GetCertificate, MinVersion: tls.VersionTLS12},
		}, tls: true},
	}
}

func redirectToHTTPS(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "https://"+r.Host+r.URL.RequestURI(), http.StatusMovedPermanently)
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// newLogWriter returns a rotating file writer, or nil when file logging is off.
func newLogWriter(cfg server.LoggingConfig) *lumberjack.Logger {
	if cfg.File == "" {
		return nil
	}
	return &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
}

func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// parseLogLevel accepts the slog level names plus "warning" and "err".
func parseLogLevel(value string) (slog.Level, error) {
	switch v := strings.ToLower(strings.TrimSpace(value)); v {
	case "":
		return slog.LevelInfo, nil
	case "warning":
		return slog.LevelWarn, nil
	case "err":
		return slog.LevelError, nil
	default:
		var level slog.Level
		err := level.UnmarshalText([]byte(v))
		return level, err
	}
}

func loadConfig(path string, logger *slog.Logger) (server.Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return server.Config{}, fmt.Errorf("config file not found at %s, run 'seqoauth init' to create it", path)
	}
	logger.Debug("loading config", "path", path)
	return server.LoadConfig(path)
}

// checkEndpoints sends a HEAD request to each Sequencing endpoint and returns
// one error per endpoint that could not be reached.
func checkEndpoints(ctx context.Context, cfg server.Config, logger *slog.Logger) []error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	endpoints := []struct{ name, url string }{
		{"auth", cfg.Sequencing.AuthURI},
		{"token", cfg.Sequencing.TokenURI},
		{"api", cfg.Sequencing.APIURI},
	}
	var errs []error
	for _, e := range endpoints {
		if err := validateURL(ctx, e.url); err != nil {
			errs = append(errs, fmt.Errorf("%s endpoint %s: %w", e.name, e.url, err))
			continue
		}
		logger.Debug("endpoint reachable", "endpoint", e.name, "url", e.url)
	}
	return errs
}

// validateURL checks that a host answers at all. Any status below 500 counts,
// since OAuth endpoints reject bare HEAD requests with 4xx.
func validateURL(ctx context.Context, urlStr string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, urlStr, nil)
	if err != nil {
		return err
	}
	resp, err := (&http.Client{Timeout: 5 * time.Second}).Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("received status %d", resp.StatusCode)
	}
	return nil
}

// runConnect follows the login redirect of a fresh client and reports whether
// the Sequencing sign-in page is reachable with the configured client.
func runConnect(ctx context.Context, cfg server.Config, logger *slog.Logger, hc *http.Client) error {
	authURL := client.NewClient(cfg.AuthParameters(), client.WithLogger(logger)).LoginRedirectURL()
	logger.Info("open auth_url in a browser to sign in", "auth_url", authURL)

	follow := http.Client{Timeout: cfg.Sequencing.HTTPTimeout}
	if hc != nil {
		follow = *hc
	}
	follow.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		logger.Debug("connect redirect", "step", len(via), "url", req.URL.String())
		if len(via) >= maxRedirects {
			return fmt.Errorf("too many redirects (%d)", len(via))
		}
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, authURL, nil)
	if err != nil {
		return err
	}
	resp, err := follow.Do(req)
	if err != nil {
		return fmt.Errorf("call authorize endpoint: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	if resp.StatusCode >= 400 {
		return fmt.Errorf("sequencing returned %s for %s", resp.Status, resp.Request.URL)
	}
	logger.Info("reached sequencing login page", "url", resp.Request.URL.String())
	return nil
}

// runSetup asks for the app registration, writes it to path and loads it
// back. An existing file is never overwritten.
func runSetup(in io.Reader, out io.Writer, path string, logger *slog.Logger) (server.Config, error) {
	secret, err := newSessionSecret()
	if err != nil {
		return server.Config{}, err
	}

	p := prompter{in: bufio.NewReader(in), out: out}
	fmt.Fprintf(out, "Writing a new Sequencing.com app config to %s. Press Enter to accept defaults.\n", path)

	cfg := server.DefaultConfig()
	cfg.Server.SessionSecret = secret
	cfg.Server.DevMode = p.yesNo("Run in development mode?", true)
	if cfg.Server.DevMode {
		cfg.Server.PublicURL = strings.TrimSuffix(p.ask("Public URL", cfg.Server.PublicURL), "/")
		cfg.Server.DevListenAddr = p.ask("Dev listen address", cfg.Server.DevListenAddr)
	} else {
		domain := strings.TrimSuffix(p.ask("Public domain (e.g. files.example.com)", ""), "/")
		if domain == "" {
			return server.Config{}, errors.New("a public domain is required in production")
		}
		cfg.Server.TLS.Domains = []string{domain}
		cfg.Server.PublicURL = "https://" + domain
		cfg.Server.TLS.Email = p.ask("ACME contact email", cfg.Server.TLS.Email)
	}

	cfg.Sequencing.ClientID = p.ask("Sequencing app client ID", "")
	cfg.Sequencing.ClientSecret = p.ask("Sequencing app client secret", "")
	if redirect := p.ask("Redirect URI registered with Sequencing", cfg.RedirectURI()); redirect != cfg.RedirectURI() {
		cfg.Sequencing.RedirectURI = redirect
	}
	cfg.Sequencing.Scope = p.ask("Scope", cfg.Sequencing.Scope)

	if err := cfg.Validate(); err != nil {
		return server.Config{}, err
	}
	if err := writeConfigFile(path, cfg); err != nil {
		return server.Config{}, err
	}
	logger.Info("configuration created", "path", path)
	return server.LoadConfig(path)
}

type prompter struct {
	in  *bufio.Reader
	out io.Writer
}

// ask returns the trimmed answer, or def for an empty one.
func (p prompter) ask(question, def string) string {
	if def != "" {
		fmt.Fprintf(p.out, "%s [%s]: ", question, def)
	} else {
		fmt.Fprintf(p.out, "%s: ", question)
	}
	line, _ := p.in.ReadString('\n')
	if line = strings.TrimSpace(line); line != "" {
		return line
	}
	return def
}

func (p prompter) yesNo(question string, def bool) bool {
	label := "y/N"
	if def {
		label = "Y/n"
	}
	switch strings.ToLower(p.ask(question+" ["+label+"]", "")) {
	case "y", "yes":
		return true
	case "n", "no":
		return false
	default:
		return def
	}
}

// newSessionSecret returns 32 random bytes, hex encoded.
func newSessionSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func writeConfigFile(path string, cfg server.Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("create config: %w", err)
	}
	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		f.Close()
		return fmt.Errorf("write config: %w", err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return fmt.Errorf("write config: %w", err)
	}
	return f.Close()
}
