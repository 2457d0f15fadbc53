// Package google signs users in with Google and keeps their OAuth tokens fresh.
//
// An Authenticator exchanges the authorization code of the web sign-in flow
// for a token, stores it in a TokenStore under a new session id and hands out
// valid access tokens for that session. Tokens expiring within RefreshThreshold
// are refreshed before use; a failed refresh falls back to the stored token so
// the Google API call itself reports the problem. A session without a token
// yields ErrUnauthenticated.
//
// The TokenStore is satisfied by the in-memory store of
// github.com/giantswarm/mcp-oauth/storage/memory.
package google
