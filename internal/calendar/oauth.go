package calendar

import (
	"context"
	"fmt"
	"log"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
)

// TokenStore persists OAuth tokens per account. LoadToken returns a nil
// token when the account has none.
type TokenStore interface {
	LoadToken(ctx context.Context, account string) (*oauth2.Token, error)
	SaveToken(ctx context.Context, account string, token *oauth2.Token) error
}

func NewOAuthConfig(clientID, clientSecret string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  "urn:ietf:wg:oauth:2.0:oob",
		Scopes:       []string{gcal.CalendarScope},
	}
}

// AuthCodeURL is the link the operator opens to grant calendar access.
func AuthCodeURL(conf *oauth2.Config) string {
	return conf.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
}

// ExchangeAndSave trades an authorization code for a token and stores it.
func ExchangeAndSave(ctx context.Context, conf *oauth2.Config, tokens TokenStore, account, code string) error {
	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("unable to retrieve token from web: %w", err)
	}
	if err := tokens.SaveToken(ctx, account, tok); err != nil {
		return fmt.Errorf("save token for %s: %w", account, err)
	}
	return nil
}

// savingTokenSource writes refreshed tokens back to the store.
type savingTokenSource struct {
	mu      sync.Mutex
	ctx     context.Context
	base    oauth2.TokenSource
	tokens  TokenStore
	account string
	last    string
	lg      *log.Logger
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		s.last = tok.AccessToken
		if err := s.tokens.SaveToken(s.ctx, s.account, tok); err != nil {
			s.lg.Printf("❗️ Failed to save refreshed token for account %s: %v", s.account, err)
		} else {
			s.lg.Printf("Token refreshed for account %s.", s.account)
		}
	}
	return tok, nil
}

// NewTokenSource loads the stored token for account and returns a source
// that refreshes it and persists every new access token.
func NewTokenSource(ctx context.Context, conf *oauth2.Config, tokens TokenStore, account string, lg *log.Logger) (oauth2.TokenSource, error) {
	tok, err := tokens.LoadToken(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("error retrieving token from database: %w", err)
	}
	if tok == nil {
		return nil, fmt.Errorf("no token found for account %s, run `opscal auth` first", account)
	}
	if lg == nil {
		lg = log.Default()
	}
	return oauth2.ReuseTokenSource(tok, &savingTokenSource{
		ctx:     ctx,
		base:    conf.TokenSource(ctx, tok),
		tokens:  tokens,
		account: account,
		last:    tok.AccessToken,
		lg:      lg,
	}), nil
}
