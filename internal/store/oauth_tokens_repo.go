package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/oauth2"
)

// OAuthTokensRepo keeps one OAuth token per calendar account.
type OAuthTokensRepo struct {
	db *sql.DB
}

func NewOAuthTokensRepo(db *sql.DB) *OAuthTokensRepo {
	return &OAuthTokensRepo{db: db}
}

func (r *OAuthTokensRepo) SaveToken(ctx context.Context, account string, token *oauth2.Token) error {
	tokenJSON, err := json.Marshal(token)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, "INSERT OR REPLACE INTO tokens (account_name, token) VALUES (?, ?)", account, tokenJSON)
	return err
}

// LoadToken returns nil, nil when the account has no token yet.
func (r *OAuthTokensRepo) LoadToken(ctx context.Context, account string) (*oauth2.Token, error) {
	var tokenJSON []byte
	err := r.db.QueryRowContext(ctx, "SELECT token FROM tokens WHERE account_name = ?", account).Scan(&tokenJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var token oauth2.Token
	if err := json.Unmarshal(tokenJSON, &token); err != nil {
		return nil, fmt.Errorf("error unmarshaling token: %w", err)
	}
	return &token, nil
}
