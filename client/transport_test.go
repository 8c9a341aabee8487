package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

func TestTransportGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Test") != "yes" {
			t.Errorf("missing header, got %q", r.Header.Get("X-Test"))
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tr := NewTransport(srv.Client())
	body, err := tr.Get(context.Background(), srv.URL+"/x", map[string]string{"X-Test": "yes"})
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if body != `{"ok":true}` {
		t.Fatalf("unexpected body %q", body)
	}
}

func TestTransportPostForm(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
			t.Errorf("unexpected content type %q", ct)
		}
		raw, _ := io.ReadAll(r.Body)
		w.Write(raw)
	}))
	defer srv.Close()

	form := url.Values{"a": {"1"}, "b": {"x y"}}
	body, err := NewTransport(srv.Client()).PostForm(context.Background(), srv.URL, nil, form)
	if err != nil {
		t.Fatalf("PostForm returned error: %v", err)
	}
	if body != form.Encode() {
		t.Fatalf("form mismatch: got %q want %q", body, form.Encode())
	}
}

func TestTransportNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := NewTransport(srv.Client()).Get(context.Background(), srv.URL+"/denied", nil)
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected *TransportError, got %T", err)
	}
	if te.StatusCode != http.StatusForbidden || te.URI != srv.URL+"/denied" || te.Body != "nope" {
		t.Fatalf("unexpected transport error: %+v", te)
	}
}

func TestTransportConnectionFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	uri := srv.URL
	srv.Close()

	_, err := NewTransport(nil).Get(context.Background(), uri, nil)
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected *TransportError, got %v", err)
	}
	if te.StatusCode != 0 || te.Err == nil {
		t.Fatalf("expected I/O failure, got %+v", te)
	}
}

func TestAuthorizationHeaders(t *testing.T) {
	if got := BasicAuthorization("id", "secret"); got != "Basic aWQ6c2VjcmV0" {
		t.Fatalf("unexpected basic header %q", got)
	}
	if got := BearerAuthorization("tok"); got != "Bearer tok" {
		t.Fatalf("unexpected bearer header %q", got)
	}
}
