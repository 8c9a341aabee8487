package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// DataSourceList file types.
const (
	FileTypeSample   = "sample"
	FileTypeUploaded = "uploaded"
)

// FileMetadataAPI lists the files available to the authorized account.
type FileMetadataAPI struct {
	client *Client
}

// NewFileMetadataAPI returns an API bound to c.
func NewFileMetadataAPI(c *Client) *FileMetadataAPI {
	return &FileMetadataAPI{client: c}
}

// SampleFiles returns the raw JSON list of sample files.
func (a *FileMetadataAPI) SampleFiles(ctx context.Context) (string, error) {
	return a.filesByType(ctx, FileTypeSample)
}

// OwnFiles returns the raw JSON list of files uploaded by the user.
func (a *FileMetadataAPI) OwnFiles(ctx context.Context) (string, error) {
	return a.filesByType(ctx, FileTypeUploaded)
}

// Files returns sample files followed by own files as a single JSON array.
func (a *FileMetadataAPI) Files(ctx context.Context) (string, error) {
	sample, err := a.SampleFiles(ctx)
	if err != nil {
		return "", err
	}
	own, err := a.OwnFiles(ctx)
	if err != nil {
		return "", err
	}
	return mergeArrays(sample, own)
}

func (a *FileMetadataAPI) filesByType(ctx context.Context, fileType string) (string, error) {
	if !a.client.IsAuthorized() {
		return "", ErrNotAuthorized
	}

	// A failed refresh still leaves a usable, if possibly stale, token.
	tok, err := a.client.Token(ctx)
	if err != nil && !errors.Is(err, ErrRefreshFailed) {
		return "", err
	}

	uri := fmt.Sprintf("%s/DataSourceList?%s=true&shared=true",
		strings.TrimSuffix(a.client.params.APIURI, "/"), fileType)
	headers := map[string]string{"Authorization": BearerAuthorization(tok.AccessToken)}
	return a.client.transport.Get(ctx, uri, headers)
}
