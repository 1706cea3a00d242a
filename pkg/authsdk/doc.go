// Package authsdk is a Go client for the gatekeeper HTTP API and the wire
// types shared with its handlers.
//
// Credentials travel in HTTP-only cookies, so a Client keeps a cookie jar:
// Login stores the access and refresh cookies, Refresh rotates them, and
// Logout clears them.
//
//	c, err := authsdk.NewClient("https://auth.example.com", nil)
//	if err != nil {
//		return err
//	}
//	if _, err := c.Login(ctx, "alice@example.com", "correct horse"); err != nil {
//		return err
//	}
//	me, err := c.Me(ctx)
//
// Denials come back as *httpx.APIError carrying the status, message and
// details of the response body. Use IsStatus to branch on them.
package authsdk
