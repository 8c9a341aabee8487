package server

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"seqoauth/client"
)

const (
	kindSample = "sample"
	kindOwn    = "own"
	kindAll    = "all"
)

var errUnknownKind = errors.New("unknown file kind")

// App bundles runtime dependencies for the HTTP service.
type App struct {
	Config   Config
	Logger   *slog.Logger
	Store    *InMemoryStore
	Sessions *SessionManager
}

// NewApp wires together the application state from configuration.
func NewApp(cfg Config, logger *slog.Logger) (*App, error) {
	store := NewInMemoryStore()

	secret := []byte(cfg.Server.SessionSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("generate session secret: %w", err)
		}
		logger.Warn("server.session_secret not set; sessions will not survive a restart")
	}

	httpClient := &http.Client{Timeout: cfg.Sequencing.HTTPTimeout}
	newClient := func(sessionID string) *client.Client {
		return client.NewClient(cfg.AuthParameters(),
			client.WithHTTPClient(httpClient),
			client.WithLogger(logger.With("session", sessionID)),
		)
	}

	return &App{
		Config:   cfg,
		Logger:   logger,
		Store:    store,
		Sessions: NewSessionManager(cfg, store, secret, newClient, logger),
	}, nil
}

func (a *App) handleHome(w http.ResponseWriter, r *http.Request) {
	sess := a.Sessions.Fetch(r)
	a.render(w, http.StatusOK, PageData{Authorized: sess != nil && sess.Client.IsAuthorized()})
}

// handleLogin starts a new authorization flow. Each login gets a fresh
// session and therefore a fresh state value.
func (a *App) handleLogin(w http.ResponseWriter, r *http.Request) {
	sess, err := a.Sessions.Create(w, r)
	if err != nil {
		a.Logger.Error("failed to create session", "error", err)
		http.Error(w, "failed to create session", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, sess.Client.LoginRedirectURL(), http.StatusFound)
}

func (a *App) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if providerErr := q.Get("error"); providerErr != "" {
		a.Logger.Warn("authorization denied by provider", "error", providerErr, "description", q.Get("error_description"))
		a.render(w, http.StatusBadRequest, PageData{Error: "authorization was denied: " + providerErr})
		return
	}

	sess := a.Sessions.Fetch(r)
	if sess == nil {
		a.render(w, http.StatusBadRequest, PageData{Error: "no login in progress"})
		return
	}

	code, state := q.Get("code"), q.Get("state")
	if code == "" || state == "" {
		a.render(w, http.StatusBadRequest, PageData{Error: "code and state are required"})
		return
	}

	if _, err := sess.Client.Authorize(r.Context(), code, state); err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, client.ErrInvalidState) {
			status = http.StatusBadRequest
		}
		a.Logger.Warn("authorization failed", "error", err, "session", sess.ID)
		a.render(w, status, PageData{Error: err.Error()})
		return
	}

	http.Redirect(w, r, "/files/"+kindSample, http.StatusSeeOther)
}

func (a *App) handleFiles(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "kind")
	body, err := a.fetchFiles(r.Context(), a.Sessions.Fetch(r), kind)
	if err != nil {
		a.render(w, statusFor(err), PageData{Kind: kind, Error: err.Error()})
		return
	}

	files, err := client.ParseFileList(body)
	if err != nil {
		a.render(w, http.StatusBadGateway, PageData{Authorized: true, Kind: kind, Error: err.Error()})
		return
	}
	a.render(w, http.StatusOK, PageData{Authorized: true, Kind: kind, Files: files})
}

func (a *App) handleAPIFiles(w http.ResponseWriter, r *http.Request) {
	body, err := a.fetchFiles(r.Context(), a.Sessions.Fetch(r), chi.URLParam(r, "kind"))
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusFor(err))
		_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(body))
}

func (a *App) handleLogout(w http.ResponseWriter, r *http.Request) {
	a.Sessions.Clear(w, r)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (a *App) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]any{"status": "ok", "sessions": a.Store.Len()})
}

func (a *App) fetchFiles(ctx context.Context, sess *Session, kind string) (string, error) {
	if sess == nil {
		return "", client.ErrNotAuthorized
	}
	switch kind {
	case kindSample:
		return sess.Files.SampleFiles(ctx)
	case kindOwn:
		return sess.Files.OwnFiles(ctx)
	case kindAll:
		return sess.Files.Files(ctx)
	default:
		return "", fmt.Errorf("%w: %q", errUnknownKind, kind)
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errUnknownKind):
		return http.StatusNotFound
	case errors.Is(err, client.ErrNotAuthorized):
		return http.StatusUnauthorized
	case errors.Is(err, client.ErrTransport), errors.Is(err, client.ErrMalformedResponse):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
