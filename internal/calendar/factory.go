package calendar

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/bobuk/opscal/internal/config"
)

// NewClientFromConfig builds the configured provider. Only one provider is
// active at a time.
func NewClientFromConfig(ctx context.Context, cfg *config.Config, tokens TokenStore, lg *log.Logger) (Client, error) {
	base := &http.Client{Timeout: cfg.RequestTimeout()}

	switch cfg.Calendar.Provider {
	case "google":
		conf := NewOAuthConfig(cfg.ClientID, cfg.ClientSecret)
		ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
		ts, err := NewTokenSource(ctx, conf, tokens, cfg.Calendar.AccountName, lg)
		if err != nil {
			return nil, err
		}
		httpClient := oauth2.NewClient(ctx, ts)
		httpClient.Timeout = cfg.RequestTimeout()
		googleClient, err := NewGoogleClient(ctx, httpClient, cfg.Calendar.CalendarID, cfg.Location())
		if err != nil {
			return nil, fmt.Errorf("error creating Google calendar provider: %w", err)
		}
		return googleClient, nil

	case "caldav":
		caldavClient, err := NewCalDAVClient(ctx, base, cfg.Calendar.ServerURL, cfg.Calendar.Username,
			cfg.Calendar.Password, cfg.Calendar.CalendarID, cfg.Location())
		if err != nil {
			return nil, fmt.Errorf("error connecting to CalDAV server %s: %w", cfg.Calendar.ServerURL, err)
		}
		return caldavClient, nil

	default:
		return nil, fmt.Errorf("unsupported provider type: %s", cfg.Calendar.Provider)
	}
}
