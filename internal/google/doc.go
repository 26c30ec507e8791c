// Package google holds the Google OAuth2 plumbing shared by the credential
// manager and the calendar gateway: client configuration, required scopes,
// and an authorized HTTP client built on top of a TokenProvider.
package google
