// Package google wraps the Gmail, Calendar and Tasks APIs behind small
// methods taking and returning plain values.
package google

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/tasks/v1"
)

// Scopes requested by the token flow; one token serves all three services.
var Scopes = []string{
	tasks.TasksScope,
	calendar.CalendarScope,
	gmail.MailGoogleComScope,
}

// LoadOAuthConfig reads an OAuth client secrets file downloaded from the
// Google Cloud console.
func LoadOAuthConfig(credentialsFile string) (*oauth2.Config, error) {
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	conf, err := googleoauth.ConfigFromJSON(data, Scopes...)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	return conf, nil
}

// storedToken accepts both the oauth2.Token layout and the authorized-user
// layout written by Google's Python client ("token", "expiry").
type storedToken struct {
	AccessToken  string    `json:"access_token"`
	Token        string    `json:"token"`
	TokenType    string    `json:"token_type"`
	RefreshToken string    `json:"refresh_token"`
	Expiry       time.Time `json:"expiry"`
}

// LoadToken reads a saved token.
func LoadToken(tokenFile string) (*oauth2.Token, error) {
	data, err := os.ReadFile(tokenFile)
	if err != nil {
		return nil, fmt.Errorf("read token: %w", err)
	}
	var st storedToken
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	tok := &oauth2.Token{
		AccessToken:  st.AccessToken,
		TokenType:    st.TokenType,
		RefreshToken: st.RefreshToken,
		Expiry:       st.Expiry,
	}
	if tok.AccessToken == "" {
		tok.AccessToken = st.Token
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return nil, fmt.Errorf("token file %s holds no token", tokenFile)
	}
	return tok, nil
}

// SaveToken writes tok to tokenFile with owner-only permissions.
func SaveToken(tokenFile string, tok *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(tokenFile), 0700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	if err := os.WriteFile(tokenFile, data, 0600); err != nil {
		return fmt.Errorf("write token: %w", err)
	}
	return nil
}

// AuthURL returns the consent page URL for an installed-app flow.
func AuthURL(conf *oauth2.Config) string {
	return conf.AuthCodeURL("state-token", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for a token and saves it.
func Exchange(ctx context.Context, conf *oauth2.Config, code, tokenFile string) (*oauth2.Token, error) {
	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}
	if err := SaveToken(tokenFile, tok); err != nil {
		return nil, err
	}
	return tok, nil
}

// savingSource persists refreshed tokens so a restart does not need a new
// refresh round trip.
type savingSource struct {
	src  oauth2.TokenSource
	path string
	last string
}

func (s *savingSource) Token() (*oauth2.Token, error) {
	tok, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	if tok.AccessToken != s.last {
		s.last = tok.AccessToken
		_ = SaveToken(s.path, tok)
	}
	return tok, nil
}

// TokenSource builds a refreshing token source from the credentials and
// token files.
func TokenSource(ctx context.Context, credentialsFile, tokenFile string) (oauth2.TokenSource, error) {
	conf, err := LoadOAuthConfig(credentialsFile)
	if err != nil {
		return nil, err
	}
	tok, err := LoadToken(tokenFile)
	if err != nil {
		return nil, err
	}
	src := &savingSource{src: conf.TokenSource(ctx, tok), path: tokenFile, last: tok.AccessToken}
	return oauth2.ReuseTokenSource(tok, src), nil
}
