package server

import (
	"time"

	"seqoauth/client"
)

// Session binds a browser cookie to its own OAuth2 client. Every login starts
// a new session, so each authorization flow gets its own state value.
type Session struct {
	ID        string
	CreatedAt time.Time
	ExpiresAt time.Time
	Client    *client.Client
	Files     *client.FileMetadataAPI
}

// PageData feeds the HTML templates.
type PageData struct {
	Authorized bool
	Kind       string
	Files      []client.FileSummary
	Error      string
}
