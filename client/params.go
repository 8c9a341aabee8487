package client

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/oauth2"
)

// Sequencing.com defaults.
const (
	DefaultAuthURI          = "https://sequencing.com/oauth2/authorize"
	DefaultTokenURI         = "https://sequencing.com/oauth2/token"
	DefaultAPIURI           = "https://api.sequencing.com"
	DefaultResponseType     = "code"
	DefaultScope            = "demo,external"
	DefaultGrantType        = "authorization_code"
	DefaultRefreshGrantType = "refresh_token"
	DefaultMobileMode       = "0"
)

// Parameters configures the authorization flow against the Sequencing backend.
// Build it with NewParameters; a Client keeps its own copy and never changes it.
type Parameters struct {
	// AuthURI is where the user is sent to authorize the app.
	AuthURI string
	// TokenURI is where codes and refresh tokens are exchanged.
	TokenURI string
	// APIURI is the base of the data API.
	APIURI string
	// RedirectURI must match the one registered for the app.
	RedirectURI  string
	ResponseType string
	// State is echoed back by the provider on redirect and must match on Authorize.
	State        string
	ClientID     string
	ClientSecret string
	Scope        string
	GrantType    string
	// RefreshGrantType is the grant_type sent when refreshing.
	RefreshGrantType string
	// MobileMode selects the login page layout: "1" mobile, "0" web.
	MobileMode string
}

// NewParameters fills every empty field of p with its default. An empty State
// is replaced by a freshly generated one.
func NewParameters(p Parameters) Parameters {
	setDefault(&p.AuthURI, DefaultAuthURI)
	setDefault(&p.TokenURI, DefaultTokenURI)
	setDefault(&p.APIURI, DefaultAPIURI)
	setDefault(&p.ResponseType, DefaultResponseType)
	setDefault(&p.Scope, DefaultScope)
	setDefault(&p.GrantType, DefaultGrantType)
	setDefault(&p.RefreshGrantType, DefaultRefreshGrantType)
	setDefault(&p.MobileMode, DefaultMobileMode)
	if p.State == "" {
		p.State = NextState()
	}
	return p
}

// Endpoint returns the authorization and token endpoints in x/oauth2 form.
func (p Parameters) Endpoint() oauth2.Endpoint {
	return oauth2.Endpoint{
		AuthURL:   p.AuthURI,
		TokenURL:  p.TokenURI,
		AuthStyle: oauth2.AuthStyleInHeader,
	}
}

// NextState returns a hex-encoded BLAKE2b-256 digest of 32 random bytes.
func NextState() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("seqoauth: read random state: %v", err))
	}
	sum := blake2b.Sum256(buf)
	return hex.EncodeToString(sum[:])
}

func setDefault(field *string, value string) {
	if *field == "" {
		*field = value
	}
}
