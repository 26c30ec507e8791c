package credentials

import (
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/oauth2"
)

// storedToken is the plaintext token layout inside an Envelope.
type storedToken struct {
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
	ExpiryDate   int64  `json:"expiry_date,omitempty"`
}

// MarshalToken encodes an oauth2 token in the stored layout.
func MarshalToken(tok *oauth2.Token) ([]byte, error) {
	st := storedToken{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
	}
	if !tok.Expiry.IsZero() {
		st.ExpiryDate = tok.Expiry.UnixMilli()
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		st.Scope = scope
	}
	if id, ok := tok.Extra("id_token").(string); ok {
		st.IDToken = id
	}
	return json.Marshal(st)
}

// UnmarshalToken decodes the stored layout. It also accepts the layout
// written by golang.org/x/oauth2 itself ("expiry" as RFC 3339), so a token
// saved by other Go tooling can be sealed as-is.
func UnmarshalToken(data []byte) (*oauth2.Token, error) {
	var raw struct {
		storedToken
		Expiry    *time.Time `json:"expiry,omitempty"`
		ExpiresIn int64      `json:"expires_in,omitempty"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	tok := &oauth2.Token{
		AccessToken:  raw.AccessToken,
		RefreshToken: raw.RefreshToken,
		TokenType:    raw.TokenType,
	}
	switch {
	case raw.ExpiryDate > 0:
		tok.Expiry = time.UnixMilli(raw.ExpiryDate)
	case raw.Expiry != nil:
		tok.Expiry = *raw.Expiry
	}

	extra := map[string]any{}
	if raw.Scope != "" {
		extra["scope"] = raw.Scope
	}
	if raw.IDToken != "" {
		extra["id_token"] = raw.IDToken
	}
	if len(extra) > 0 {
		tok = tok.WithExtra(extra)
	}
	return tok, nil
}
