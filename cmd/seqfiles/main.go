// Command seqfiles lists Sequencing.com files from a terminal. It prints the
// login URL, waits for the URL the browser was redirected to, exchanges the
// code and prints one summary line per file.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"seqoauth/client"
)

type options struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scope        string
	AuthURI      string
	TokenURI     string
	APIURI       string
	State        string
	Kind         string
	RawJSON      bool
	Timeout      time.Duration
}

func main() {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	var opts options
	flag.StringVar(&opts.ClientID, "client-id", getEnv("SEQOAUTH_CLIENT_ID", ""), "OAuth client ID")
	flag.StringVar(&opts.ClientSecret, "client-secret", getEnv("SEQOAUTH_CLIENT_SECRET", ""), "OAuth client secret")
	flag.StringVar(&opts.RedirectURI, "redirect-uri", getEnv("SEQOAUTH_REDIRECT_URI", "http://127.0.0.1:8080/callback"), "Redirect URI registered with Sequencing")
	flag.StringVar(&opts.Scope, "scope", getEnv("SEQOAUTH_SCOPE", client.DefaultScope), "Requested scope")
	flag.StringVar(&opts.AuthURI, "auth-uri", client.DefaultAuthURI, "Authorization endpoint")
	flag.StringVar(&opts.TokenURI, "token-uri", client.DefaultTokenURI, "Token endpoint")
	flag.StringVar(&opts.APIURI, "api-uri", client.DefaultAPIURI, "API base URI")
	flag.StringVar(&opts.State, "state", "", "Fixed state value (random when empty)")
	flag.StringVar(&opts.Kind, "kind", "sample", "Files to list: sample, own or all")
	flag.BoolVar(&opts.RawJSON, "json", false, "Print the raw JSON instead of summaries")
	flag.DurationVar(&opts.Timeout, "timeout", 30*time.Second, "HTTP timeout")
	verbose := flag.Bool("v", false, "Verbose logging")
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, os.Stdin, os.Stdout, os.Stderr, logger); err != nil {
		log.Fatalf("seqfiles: %v", err)
	}
}

func run(ctx context.Context, opts options, in io.Reader, out, prompt io.Writer, logger *slog.Logger) error {
	if opts.ClientID == "" || opts.ClientSecret == "" {
		return errors.New("client id and client secret are required")
	}

	c := client.NewClient(client.NewParameters(client.Parameters{
		AuthURI:      opts.AuthURI,
		TokenURI:     opts.TokenURI,
		APIURI:       opts.APIURI,
		RedirectURI:  opts.RedirectURI,
		State:        opts.State,
		ClientID:     opts.ClientID,
		ClientSecret: opts.ClientSecret,
		Scope:        opts.Scope,
	}),
		client.WithHTTPClient(&http.Client{Timeout: opts.Timeout}),
		client.WithLogger(logger),
	)
	files := client.NewFileMetadataAPI(c)

	fetch, err := fetcherFor(files, opts.Kind)
	if err != nil {
		return err
	}

	fmt.Fprintf(prompt, "Open this URL in a browser and sign in:\n\n  %s\n\n", c.LoginRedirectURL())
	fmt.Fprint(prompt, "Paste the URL you were redirected to: ")

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read redirect url: %w", err)
	}
	code, state, err := parseCallback(line)
	if err != nil {
		return err
	}

	if _, err := c.Authorize(ctx, code, state); err != nil {
		return err
	}

	body, err := fetch(ctx)
	if err != nil {
		return err
	}
	if opts.RawJSON {
		_, err = fmt.Fprintln(out, body)
		return err
	}

	summaries, err := client.ParseFileList(body)
	if err != nil {
		return err
	}
	for _, s := range summaries {
		if _, err := fmt.Fprintln(out, s.String()); err != nil {
			return err
		}
	}
	return nil
}

func fetcherFor(files *client.FileMetadataAPI, kind string) (func(context.Context) (string, error), error) {
	switch kind {
	case "sample":
		return files.SampleFiles, nil
	case "own":
		return files.OwnFiles, nil
	case "all":
		return files.Files, nil
	default:
		return nil, fmt.Errorf("unknown kind %q, want sample, own or all", kind)
	}
}

// parseCallback extracts code and state from the redirect URL. A bare query
// string is accepted as well.
func parseCallback(raw string) (code, state string, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", "", errors.New("no redirect url given")
	}

	query := raw
	if u, perr := url.Parse(raw); perr == nil && (u.Scheme != "" || u.RawQuery != "") {
		query = u.RawQuery
	}
	values, err := url.ParseQuery(strings.TrimPrefix(query, "?"))
	if err != nil {
		return "", "", fmt.Errorf("parse redirect url: %w", err)
	}

	if e := values.Get("error"); e != "" {
		return "", "", fmt.Errorf("authorization denied: %s", e)
	}
	code, state = values.Get("code"), values.Get("state")
	if code == "" || state == "" {
		return "", "", errors.New("redirect url carries no code and state")
	}
	return code, state, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
