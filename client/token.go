package client

import (
	"time"

	"golang.org/x/oauth2"
)

// RefreshMargin is subtracted from a token's lifetime when deciding whether it
// has to be refreshed.
const RefreshMargin = 30 * time.Second

// Token holds the credentials returned by the token endpoint.
type Token struct {
	AccessToken  string
	RefreshToken string
	// Lifetime of the access token in seconds. Zero means not authorized.
	Lifetime    int64
	LastRefresh time.Time
}

// Expiry is the moment the access token stops being valid.
func (t Token) Expiry() time.Time {
	return t.LastRefresh.Add(time.Duration(t.Lifetime) * time.Second)
}

// NeedsRefresh reports whether now falls inside the refresh margin before expiry.
func (t Token) NeedsRefresh(now time.Time) bool {
	return !now.Before(t.Expiry().Add(-RefreshMargin))
}

// OAuth2 converts the token for use with golang.org/x/oauth2.
func (t Token) OAuth2() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  t.AccessToken,
		TokenType:    "Bearer",
		RefreshToken: t.RefreshToken,
		Expiry:       t.Expiry(),
	}
}

// sameGrant reports whether t and o came from the same token endpoint reply.
func (t Token) sameGrant(o Token) bool {
	return t.AccessToken == o.AccessToken &&
		t.RefreshToken == o.RefreshToken &&
		t.LastRefresh.Equal(o.LastRefresh)
}
