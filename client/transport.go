package client

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Transport issues the plain GET and form POST requests the client needs.
type Transport struct {
	client *http.Client
}

// NewTransport wraps hc, falling back to http.DefaultClient.
func NewTransport(hc *http.Client) *Transport {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Transport{client: hc}
}

// Get performs a GET with the given headers and returns the response body.
func (t *Transport) Get(ctx context.Context, uri string, headers map[string]string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return "", &TransportError{Method: http.MethodGet, URI: uri, Err: err}
	}
	return t.do(req, headers)
}

// PostForm performs a url-encoded POST and returns the response body.
func (t *Transport) PostForm(ctx context.Context, uri string, headers map[string]string, form url.Values) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uri, strings.NewReader(form.Encode()))
	if err != nil {
		return "", &TransportError{Method: http.MethodPost, URI: uri, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return t.do(req, headers)
}

func (t *Transport) do(req *http.Request, headers map[string]string) (string, error) {
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	uri := req.URL.String()
	resp, err := t.client.Do(req)
	if err != nil {
		return "", &TransportError{Method: req.Method, URI: uri, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &TransportError{Method: req.Method, URI: uri, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return "", &TransportError{
			Method:     req.Method,
			URI:        uri,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}
	return string(body), nil
}

// BasicAuthorization returns the Authorization header value for client credentials.
func BasicAuthorization(clientID, clientSecret string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(clientID+":"+clientSecret))
}

// BearerAuthorization returns the Authorization header value for an access token.
func BearerAuthorization(accessToken string) string {
	return "Bearer " + accessToken
}
