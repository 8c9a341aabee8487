package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"seqoauth/client"
)

// Hardcoded session defaults
const (
	DefaultSessionTTL  = 12 * time.Hour
	DefaultHTTPTimeout = 30 * time.Second
	DefaultHSTSMaxAge  = 31536000
)

// Config captures the full application configuration loaded from YAML and environment variables.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Sequencing SequencingConfig `yaml:"sequencing"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig controls listener, TLS, and session concerns.
type ServerConfig struct {
	PublicURL       string        `yaml:"public_url"`
	DevListenAddr   string        `yaml:"dev_listen_addr"`
	HTTPListenAddr  string        `yaml:"http_listen_addr"`
	HTTPSListenAddr string        `yaml:"https_listen_addr"`
	DevMode         bool          `yaml:"dev_mode"`
	CookieDomain    string        `yaml:"cookie_domain"`
	SessionTTL      time.Duration `yaml:"session_ttl"`
	SessionSecret   string        `yaml:"session_secret"`
	TLS             TLSConfig     `yaml:"tls"`
}

// TLSConfig defines autocert behaviour.
type TLSConfig struct {
	Domains    []string `yaml:"domains"`
	Email      string   `yaml:"email"`
	CacheDir   string   `yaml:"cache_dir"`
	HSTSMaxAge int      `yaml:"hsts_max_age"`
}

// SequencingConfig holds the OAuth2 app registration and endpoints.
// Empty endpoint fields fall back to the client package defaults.
type SequencingConfig struct {
	ClientID     string        `yaml:"client_id"`
	ClientSecret string        `yaml:"client_secret"`
	RedirectURI  string        `yaml:"redirect_uri"`
	Scope        string        `yaml:"scope"`
	MobileMode   bool          `yaml:"mobile_mode"`
	AuthURI      string        `yaml:"auth_uri"`
	TokenURI     string        `yaml:"token_uri"`
	APIURI       string        `yaml:"api_uri"`
	HTTPTimeout  time.Duration `yaml:"http_timeout"`
}

// LoggingConfig optionally mirrors logs into a rotated file.
type LoggingConfig struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// LoadConfig reads the YAML config file and merges environment overrides.
func LoadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		sanitized := stripYAMLComments(b)

		decoder := yaml.NewDecoder(bytes.NewReader(sanitized))
		decoder.KnownFields(true)

		if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
				slog.Error("Configuration contains unknown keys", "error", err, "file", path)
				return Config{}, fmt.Errorf("invalid config: %w (check for typos or deprecated fields)", err)
			}
			slog.Error("Failed to parse configuration", "error", err, "file", path)
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		slog.Error("Configuration validation failed", "error", err)
		return Config{}, err
	}

	return cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			PublicURL:       "http://127.0.0.1:8080",
			DevListenAddr:   "127.0.0.1:8080",
			HTTPListenAddr:  ":80",
			HTTPSListenAddr: ":443",
			DevMode:         true,
			SessionTTL:      DefaultSessionTTL,
			TLS: TLSConfig{
				Domains:    []string{"localhost"},
				CacheDir:   ".secrets/tls",
				HSTSMaxAge: DefaultHSTSMaxAge,
			},
		},
		Sequencing: SequencingConfig{
			Scope:       client.DefaultScope,
			AuthURI:     client.DefaultAuthURI,
			TokenURI:    client.DefaultTokenURI,
			APIURI:      client.DefaultAPIURI,
			HTTPTimeout: DefaultHTTPTimeout,
		},
		Logging: LoggingConfig{
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// DefaultConfig returns the default configuration template.
func DefaultConfig() Config {
	return defaultConfig()
}

// RedirectURI returns the configured redirect URI or the /callback route of the public URL.
func (c Config) RedirectURI() string {
	if c.Sequencing.RedirectURI != "" {
		return c.Sequencing.RedirectURI
	}
	return strings.TrimSuffix(c.Server.PublicURL, "/") + "/callback"
}

// AuthParameters builds client parameters with a freshly generated state.
func (c Config) AuthParameters() client.Parameters {
	mobile := "0"
	if c.Sequencing.MobileMode {
		mobile = "1"
	}
	return client.NewParameters(client.Parameters{
		AuthURI:      c.Sequencing.AuthURI,
		TokenURI:     c.Sequencing.TokenURI,
		APIURI:       c.Sequencing.APIURI,
		RedirectURI:  c.RedirectURI(),
		ClientID:     c.Sequencing.ClientID,
		ClientSecret: c.Sequencing.ClientSecret,
		Scope:        c.Sequencing.Scope,
		MobileMode:   mobile,
	})
}

func stripYAMLComments(in []byte) []byte {
	lines := bytes.Split(in, []byte("\n"))
	out := make([][]byte, 0, len(lines))
	for _, line := range lines {
		trim := bytes.TrimLeft(line, " \t")
		if len(trim) > 0 && trim[0] == '#' {
			continue
		}
		out = append(out, line)
	}
	return bytes.Join(out, []byte("\n"))
}

func applyEnvOverrides(cfg *Config) {
	overrides := map[string]func(string){
		"SEQOAUTH_PUBLIC_URL":        func(v string) { cfg.Server.PublicURL = v },
		"SEQOAUTH_DEV_LISTEN_ADDR":   func(v string) { cfg.Server.DevListenAddr = v },
		"SEQOAUTH_HTTP_LISTEN_ADDR":  func(v string) { cfg.Server.HTTPListenAddr = v },
		"SEQOAUTH_HTTPS_LISTEN_ADDR": func(v string) { cfg.Server.HTTPSListenAddr = v },
		"SEQOAUTH_DEV_MODE":          func(v string) { cfg.Server.DevMode = parseBool(v, cfg.Server.DevMode) },
		"SEQOAUTH_SESSION_TTL":       func(v string) { cfg.Server.SessionTTL = parseDuration(v, cfg.Server.SessionTTL) },
		"SEQOAUTH_SESSION_SECRET":    func(v string) { cfg.Server.SessionSecret = v },
		"SEQOAUTH_TLS_DOMAINS":       func(v string) { cfg.Server.TLS.Domains = splitAndTrim(v) },
		"SEQOAUTH_TLS_EMAIL":         func(v string) { cfg.Server.TLS.Email = v },
		"SEQOAUTH_CLIENT_ID":         func(v string) { cfg.Sequencing.ClientID = v },
		"SEQOAUTH_CLIENT_SECRET":     func(v string) { cfg.Sequencing.ClientSecret = v },
		"SEQOAUTH_REDIRECT_URI":      func(v string) { cfg.Sequencing.RedirectURI = v },
		"SEQOAUTH_SCOPE":             func(v string) { cfg.Sequencing.Scope = v },
		"SEQOAUTH_MOBILE_MODE":       func(v string) { cfg.Sequencing.MobileMode = parseBool(v, cfg.Sequencing.MobileMode) },
		"SEQOAUTH_HTTP_TIMEOUT":      func(v string) { cfg.Sequencing.HTTPTimeout = parseDuration(v, cfg.Sequencing.HTTPTimeout) },
		"SEQOAUTH_LOG_FILE":          func(v string) { cfg.Logging.File = v },
		"SEQOAUTH_LOG_MAX_SIZE_MB":   func(v string) { cfg.Logging.MaxSizeMB = parseInt(v, cfg.Logging.MaxSizeMB) },
	}

	for key, fn := range overrides {
		if val, ok := os.LookupEnv(key); ok {
			fn(val)
		}
	}
}

func parseDuration(val string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return d
}

func parseInt(val string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil {
		return fallback
	}
	return n
}

func parseBool(val string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return fallback
	}
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Validate performs minimal sanity checks on the config.
func (c Config) Validate() error {
	if c.Server.PublicURL == "" {
		slog.Error("Missing required configuration", "field", "server.public_url")
		return errors.New("server.public_url is required")
	}
	if !isHTTPURL(c.Server.PublicURL) {
		slog.Error("Invalid configuration value", "field", "server.public_url", "value", c.Server.PublicURL, "reason", "must start with http:// or https://")
		return fmt.Errorf("server.public_url must start with http:// or https://, got: %s", c.Server.PublicURL)
	}

	if !c.Server.DevMode && len(c.Server.TLS.Domains) == 0 {
		slog.Error("Missing required configuration for production mode", "field", "server.tls.domains")
		return errors.New("server.tls.domains must be provided in production")
	}

	if c.Server.SessionTTL <= 0 {
		slog.Error("Invalid session TTL", "field", "server.session_ttl", "value", c.Server.SessionTTL)
		return fmt.Errorf("server.session_ttl must be positive, got: %s", c.Server.SessionTTL)
	}

	if c.Sequencing.ClientID == "" {
		slog.Error("Missing required configuration", "field", "sequencing.client_id")
		return errors.New("sequencing.client_id is required")
	}
	if c.Sequencing.ClientSecret == "" {
		slog.Error("Missing required configuration", "field", "sequencing.client_secret")
		return errors.New("sequencing.client_secret is required")
	}

	uris := map[string]string{
		"sequencing.redirect_uri": c.RedirectURI(),
		"sequencing.auth_uri":     c.Sequencing.AuthURI,
		"sequencing.token_uri":    c.Sequencing.TokenURI,
		"sequencing.api_uri":      c.Sequencing.APIURI,
	}
	for field, uri := range uris {
		if uri == "" {
			continue
		}
		if !isHTTPURL(uri) {
			slog.Error("Invalid configuration value", "field", field, "value", uri, "reason", "must be a valid HTTP(S) URL")
			return fmt.Errorf("%s must start with http:// or https://, got: %s", field, uri)
		}
	}

	if c.Sequencing.HTTPTimeout < 0 {
		return fmt.Errorf("sequencing.http_timeout must not be negative, got: %s", c.Sequencing.HTTPTimeout)
	}

	return nil
}

func isHTTPURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
