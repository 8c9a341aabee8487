// Package client implements the Sequencing.com OAuth2 authorization code flow
// and the file metadata calls made with the resulting token.
//
// Usage:
//
//	params := client.NewParameters(client.Parameters{
//		ClientID:     "your_client_id",
//		ClientSecret: "your_client_secret",
//		RedirectURI:  "https://app.example.com/callback",
//	})
//	c := client.NewClient(params)
//
//	// Send the user agent here; keep params.State to compare on the callback.
//	loginURL := c.LoginRedirectURL()
//
//	// On the redirect URI:
//	if _, err := c.Authorize(ctx, code, state); err != nil {
//		// errors.Is(err, client.ErrInvalidState), client.ErrAuthenticationFailed, ...
//	}
//
//	files := client.NewFileMetadataAPI(c)
//	raw, err := files.SampleFiles(ctx)
package client
