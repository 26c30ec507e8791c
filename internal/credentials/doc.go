// Package credentials keeps the calendar OAuth credential encrypted at rest
// and hands out valid access tokens.
//
// The credential file holds a single JSON document:
//
//	{"tokens":{"encrypted":"<hex>","iv":"<hex>","authTag":"<hex>"}}
//
// The ciphertext is AES-256-GCM with a 16-byte IV over the token JSON
// (access_token, refresh_token, token_type, expiry_date in epoch
// milliseconds, scope). The key is derived from TOKEN_ENCRYPTION_KEY with
// scrypt (N=16384, r=8, p=1, salt "salt"), which keeps files written by
// earlier deployments readable.
//
// Manager refreshes the access token shortly before it expires, collapses
// concurrent refreshes into one exchange, and persists the result.
package credentials
