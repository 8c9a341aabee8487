package client

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// Form and query parameter names used by the Sequencing OAuth2 endpoints.
const (
	paramRedirectURI  = "redirect_uri"
	paramResponseType = "response_type"
	paramState        = "state"
	paramClientID     = "client_id"
	paramScope        = "scope"
	paramMobile       = "mobile"
	paramCode         = "code"
	paramGrantType    = "grant_type"
	paramRefreshToken = "refresh_token"
	paramAccessToken  = "access_token"
	paramExpiresIn    = "expires_in"
)

const (
	refreshFlightKey = "refresh"
	refreshTimeout   = time.Minute
)

// Client drives the authorization code flow and keeps the resulting token fresh.
// It is safe for concurrent use.
type Client struct {
	params    Parameters
	transport *Transport
	logger    *slog.Logger
	now       func() time.Time

	mu     sync.RWMutex
	token  *Token
	flight singleflight.Group
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for every request.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.transport = NewTransport(hc) }
}

// WithLogger sets the logger. The default discards output.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// NewClient creates an unauthorized client for params.
func NewClient(params Parameters, opts ...Option) *Client {
	c := &Client{
		params: params,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.transport == nil {
		c.transport = NewTransport(nil)
	}
	return c
}

// Parameters returns the configuration the client was built with.
func (c *Client) Parameters() Parameters {
	return c.params
}

// RedirectParams returns the query parameters of the login redirect.
func (c *Client) RedirectParams() map[string]string {
	return map[string]string{
		paramRedirectURI:  c.params.RedirectURI,
		paramResponseType: c.params.ResponseType,
		paramState:        c.params.State,
		paramClientID:     c.params.ClientID,
		paramScope:        c.params.Scope,
		paramMobile:       c.params.MobileMode,
	}
}

// LoginRedirectURL builds the URL the user agent is sent to for authorization.
func (c *Client) LoginRedirectURL() string {
	cfg := oauth2.Config{
		ClientID: c.params.ClientID,
		Endpoint: c.params.Endpoint(),
	}
	opts := make([]oauth2.AuthCodeOption, 0, 6)
	for k, v := range c.RedirectParams() {
		opts = append(opts, oauth2.SetAuthURLParam(k, v))
	}
	return cfg.AuthCodeURL(c.params.State, opts...)
}

// Authorize exchanges the code received on the redirect URI for a token. The
// state echoed by the provider must equal the configured one.
func (c *Client) Authorize(ctx context.Context, code, state string) (Token, error) {
	if subtle.ConstantTimeCompare([]byte(state), []byte(c.params.State)) != 1 {
		return Token{}, ErrInvalidState
	}

	form := url.Values{}
	form.Set(paramGrantType, c.params.GrantType)
	form.Set(paramCode, code)
	form.Set(paramRedirectURI, c.params.RedirectURI)

	body, err := c.postToken(ctx, form)
	if err != nil {
		c.logger.Debug("code exchange failed", "error", err)
		return Token{}, fmt.Errorf("%w: %w", ErrAuthenticationFailed, err)
	}

	tok, err := c.parseToken(body, "")
	if err != nil {
		return Token{}, fmt.Errorf("exchange code: %w", err)
	}

	c.mu.Lock()
	c.token = &tok
	c.mu.Unlock()

	c.logger.Info("authorized", "expires_in", tok.Lifetime)
	return tok, nil
}

// IsAuthorized reports whether a token with a non-zero lifetime is held.
func (c *Client) IsAuthorized() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token != nil && c.token.Lifetime != 0
}

// Token returns the current token, refreshing it first when it is within
// RefreshMargin of expiry. When that refresh fails the held token is still
// returned, along with an error wrapping ErrRefreshFailed.
func (c *Client) Token(ctx context.Context) (Token, error) {
	tok, ok := c.current()
	if !ok {
		return Token{}, ErrNotAuthorized
	}
	if tok.Lifetime == 0 || !tok.NeedsRefresh(c.now()) {
		return tok, nil
	}

	err := c.shareRefresh(ctx, func(rctx context.Context) error {
		cur, ok := c.current()
		if !ok || !cur.NeedsRefresh(c.now()) {
			return nil
		}
		return c.refresh(rctx, cur)
	})

	tok, _ = c.current()
	if err != nil {
		c.logger.Debug("error occurred during token refresh", "error", err)
		return tok, fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}
	return tok, nil
}

// Refresh obtains a new access token using the held refresh token. On failure
// the held token is left in place.
func (c *Client) Refresh(ctx context.Context) error {
	return c.shareRefresh(ctx, func(rctx context.Context) error {
		cur, ok := c.current()
		if !ok {
			return ErrNotAuthorized
		}
		return c.refresh(rctx, cur)
	})
}

// shareRefresh runs fn at most once at a time per client. The shared call is
// detached from any single caller's cancellation and bounded by
// refreshTimeout; each caller still stops waiting when its own ctx is done.
func (c *Client) shareRefresh(ctx context.Context, fn func(context.Context) error) error {
	ch := c.flight.DoChan(refreshFlightKey, func() (any, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		return nil, fn(rctx)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TokenSource adapts the client to golang.org/x/oauth2. Refresh failures are
// logged and the held token is served regardless.
func (c *Client) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &tokenSource{ctx: ctx, client: c}
}

type tokenSource struct {
	ctx    context.Context
	client *Client
}

func (s *tokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.client.Token(s.ctx)
	if err != nil && !errors.Is(err, ErrRefreshFailed) {
		return nil, err
	}
	return tok.OAuth2(), nil
}

func (c *Client) refresh(ctx context.Context, cur Token) error {
	c.logger.Debug("going to refresh oauth token")

	form := url.Values{}
	form.Set(paramGrantType, c.params.RefreshGrantType)
	form.Set(paramRefreshToken, cur.RefreshToken)

	body, err := c.postToken(ctx, form)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAuthenticationFailed, err)
	}

	tok, err := c.parseToken(body, cur.RefreshToken)
	if err != nil {
		return fmt.Errorf("refresh token: %w", err)
	}

	c.mu.Lock()
	if c.token == nil || !c.token.sameGrant(cur) {
		c.mu.Unlock()
		c.logger.Debug("discarding refresh result, token was replaced meanwhile")
		return nil
	}
	c.token = &tok
	c.mu.Unlock()

	c.logger.Info("token has been refreshed", "expires_in", tok.Lifetime)
	return nil
}

func (c *Client) current() (Token, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.token == nil {
		return Token{}, false
	}
	return *c.token, true
}

// postToken calls the token endpoint. An empty reply counts as a failed
// authentication, same as a transport error.
func (c *Client) postToken(ctx context.Context, form url.Values) (string, error) {
	headers := map[string]string{
		"Authorization": BasicAuthorization(c.params.ClientID, c.params.ClientSecret),
		"Accept":        "application/json",
	}
	body, err := c.transport.PostForm(ctx, c.params.TokenURI, headers, form)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(body) == "" {
		return "", errors.New("empty reply from token endpoint")
	}
	return body, nil
}

// parseToken reads a token endpoint reply. A non-empty previousRefresh is kept
// when the reply carries no refresh token of its own.
func (c *Client) parseToken(body, previousRefresh string) (Token, error) {
	access, err := Field(body, paramAccessToken)
	if err != nil {
		return Token{}, err
	}
	if access == "" {
		return Token{}, fmt.Errorf("%w: empty %s", ErrMalformedResponse, paramAccessToken)
	}

	refresh, err := Field(body, paramRefreshToken)
	if err != nil || refresh == "" {
		if previousRefresh == "" {
			if err == nil {
				err = fmt.Errorf("%w: empty %s", ErrMalformedResponse, paramRefreshToken)
			}
			return Token{}, err
		}
		refresh = previousRefresh
	}

	rawLifetime, err := Field(body, paramExpiresIn)
	if err != nil {
		return Token{}, err
	}
	lifetime, err := strconv.ParseInt(rawLifetime, 10, 64)
	if err != nil {
		return Token{}, fmt.Errorf("%w: %s %q is not an integer", ErrMalformedResponse, paramExpiresIn, rawLifetime)
	}

	return Token{
		AccessToken:  access,
		RefreshToken: refresh,
		Lifetime:     lifetime,
		LastRefresh:  c.now(),
	}, nil
}
