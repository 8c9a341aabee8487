package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newSequencingServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/token":
			if id, secret, ok := r.BasicAuth(); !ok || id != "cli" || secret != "s3cret" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.Write([]byte(`{"access_token":"A","refresh_token":"R","expires_in":3600}`))
		case "/DataSourceList":
			if r.URL.Query().Get("sample") == "true" {
				w.Write([]byte(`[{"Name":"Sample","FriendlyDesc1":"Demo","FriendlyDesc2":"Genome"}]`))
				return
			}
			w.Write([]byte(`[{"Name":"Mine","FriendlyDesc1":"Uploaded","FriendlyDesc2":"VCF"}]`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testOptions(srv *httptest.Server) options {
	return options{
		ClientID:     "cli",
		ClientSecret: "s3cret",
		RedirectURI:  "http://127.0.0.1:8080/callback",
		AuthURI:      srv.URL + "/authorize",
		TokenURI:     srv.URL + "/token",
		APIURI:       srv.URL,
		State:        "fixed-state",
		Kind:         "all",
	}
}

func TestRunPrintsSummaries(t *testing.T) {
	srv := newSequencingServer(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	in := strings.NewReader("http://127.0.0.1:8080/callback?code=abc&state=fixed-state\n")
	var out, prompt bytes.Buffer
	if err := run(context.Background(), testOptions(srv), in, &out, &prompt, logger); err != nil {
		t.Fatalf("run returned error: %v", err)
	}

	want := "Sample: Demo, Genome\nMine: Uploaded, VCF\n"
	if out.String() != want {
		t.Fatalf("unexpected output %q", out.String())
	}
	if !strings.Contains(prompt.String(), srv.URL+"/authorize?") {
		t.Fatalf("login url not printed: %s", prompt.String())
	}
}

func TestRunRawJSON(t *testing.T) {
	srv := newSequencingServer(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	opts := testOptions(srv)
	opts.Kind = "own"
	opts.RawJSON = true

	var out bytes.Buffer
	in := strings.NewReader("code=abc&state=fixed-state")
	if err := run(context.Background(), opts, in, &out, io.Discard, logger); err != nil {
		t.Fatalf("run returned error: %v", err)
	}
	if !strings.Contains(out.String(), `"Name":"Mine"`) {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestRunRejectsStateMismatch(t *testing.T) {
	srv := newSequencingServer(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	in := strings.NewReader("http://127.0.0.1:8080/callback?code=abc&state=other\n")
	err := run(context.Background(), testOptions(srv), in, io.Discard, io.Discard, logger)
	if err == nil || !strings.Contains(err.Error(), "state") {
		t.Fatalf("expected state error, got %v", err)
	}
}

func TestRunValidatesOptions(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if err := run(context.Background(), options{}, strings.NewReader(""), io.Discard, io.Discard, logger); err == nil {
		t.Fatalf("expected error without credentials")
	}

	opts := options{ClientID: "cli", ClientSecret: "s3cret", Kind: "everything"}
	if err := run(context.Background(), opts, strings.NewReader(""), io.Discard, io.Discard, logger); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}

func TestParseCallback(t *testing.T) {
	tests := []struct {
		in        string
		code      string
		state     string
		expectErr bool
	}{
		{in: "http://localhost/callback?code=c1&state=s1", code: "c1", state: "s1"},
		{in: "?code=c2&state=s2", code: "c2", state: "s2"},
		{in: "code=c3&state=s3\n", code: "c3", state: "s3"},
		{in: "http://localhost/callback?error=access_denied", expectErr: true},
		{in: "http://localhost/callback?code=c4", expectErr: true},
		{in: "   ", expectErr: true},
	}

	for _, tt := range tests {
		code, state, err := parseCallback(tt.in)
		if tt.expectErr {
			if err == nil {
				t.Fatalf("parseCallback(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("parseCallback(%q) returned error: %v", tt.in, err)
		}
		if code != tt.code || state != tt.state {
			t.Fatalf("parseCallback(%q) = %q, %q", tt.in, code, state)
		}
	}
}
