package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"seqoauth/client"
)

const (
	sessionCookieName = "seq_session"
	sessionIssuer     = "seqoauth"
)

// SessionManager handles cookie-backed sessions. The cookie carries an HS256
// token naming the session; the session itself stays server side.
type SessionManager struct {
	store        *InMemoryStore
	logger       *slog.Logger
	ttl          time.Duration
	secret       []byte
	secure       bool
	sameSite     http.SameSite
	cookieDomain string
	newClient    func(sessionID string) *client.Client
}

// NewSessionManager constructs a session manager honouring config. newClient
// builds the OAuth2 client for a new session.
func NewSessionManager(cfg Config, store *InMemoryStore, secret []byte, newClient func(string) *client.Client, logger *slog.Logger) *SessionManager {
	// Lax lets the cookie ride along on the top-level redirect back from the provider.
	return &SessionManager{
		store:        store,
		logger:       logger,
		ttl:          cfg.Server.SessionTTL,
		secret:       secret,
		secure:       !cfg.Server.DevMode,
		sameSite:     http.SameSiteLaxMode,
		cookieDomain: cfg.Server.CookieDomain,
		newClient:    newClient,
	}
}

// Fetch returns the session associated with the request cookie if present.
func (sm *SessionManager) Fetch(r *http.Request) *Session {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return nil
	}
	id, err := sm.parseCookie(cookie.Value)
	if err != nil {
		sm.logger.Debug("rejected session cookie", "error", err)
		return nil
	}
	sess, ok := sm.store.GetSession(id)
	if !ok {
		return nil
	}
	if time.Now().After(sess.ExpiresAt) {
		sm.store.DeleteSession(sess.ID)
		return nil
	}
	return sess
}

// Create establishes a new session with a fresh client and sets the cookie.
// A previous session on the same request is discarded.
func (sm *SessionManager) Create(w http.ResponseWriter, r *http.Request) (*Session, error) {
	if old := sm.Fetch(r); old != nil {
		sm.store.DeleteSession(old.ID)
	}

	now := time.Now()
	id := uuid.NewString()
	c := sm.newClient(id)
	sess := &Session{
		ID:        id,
		CreatedAt: now,
		ExpiresAt: now.Add(sm.ttl),
		Client:    c,
		Files:     client.NewFileMetadataAPI(c),
	}

	value, err := sm.signCookie(sess)
	if err != nil {
		return nil, err
	}

	sm.store.SaveSession(sess)
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    value,
		Path:     "/",
		Domain:   sm.cookieDomain,
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: sm.sameSite,
		MaxAge:   int(sm.ttl.Seconds()),
	})
	return sess, nil
}

// Clear removes the session and its cookie for logout.
func (sm *SessionManager) Clear(w http.ResponseWriter, r *http.Request) {
	if sess := sm.Fetch(r); sess != nil {
		sm.store.DeleteSession(sess.ID)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   sm.cookieDomain,
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: sm.sameSite,
		MaxAge:   -1,
	})
}

func (sm *SessionManager) signCookie(sess *Session) (string, error) {
	claims := jwt.RegisteredClaims{
		ID:        sess.ID,
		Issuer:    sessionIssuer,
		IssuedAt:  jwt.NewNumericDate(sess.CreatedAt),
		ExpiresAt: jwt.NewNumericDate(sess.ExpiresAt),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(sm.secret)
	if err != nil {
		return "", fmt.Errorf("sign session cookie: %w", err)
	}
	return signed, nil
}

func (sm *SessionManager) parseCookie(value string) (string, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithExpirationRequired(),
	)
	claims := &jwt.RegisteredClaims{}
	if _, err := parser.ParseWithClaims(value, claims, func(*jwt.Token) (any, error) {
		return sm.secret, nil
	}); err != nil {
		return "", err
	}
	if claims.ID == "" {
		return "", errors.New("session id missing")
	}
	return claims.ID, nil
}
