package notify

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	PurposeConfirm = "confirm"
	PurposeRebook  = "rebook"
)

var ErrInvalidLink = errors.New("invalid or expired link")

// LinkClaims are carried by every customer link.
type LinkClaims struct {
	TokenID string `json:"tid"`
	EventID string `json:"eid"`
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

// Links signs customer-facing confirm and rebook URLs with HS256.
type Links struct {
	baseURL string
	secret  []byte
	now     func() time.Time
}

func NewLinks(baseURL, secret string) (*Links, error) {
	if secret == "" {
		return nil, errors.New("link signing needs a token secret")
	}
	return &Links{
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  []byte(secret),
		now:     time.Now,
	}, nil
}

func (l *Links) ConfirmURL(tokenID, eventID string, expires time.Time) (string, error) {
	return l.url(PurposeConfirm, tokenID, eventID, expires)
}

func (l *Links) RebookURL(tokenID, eventID string, expires time.Time) (string, error) {
	return l.url(PurposeRebook, tokenID, eventID, expires)
}

func (l *Links) url(purpose, tokenID, eventID string, expires time.Time) (string, error) {
	signed, err := l.Sign(purpose, tokenID, eventID, expires)
	if err != nil {
		return "", err
	}
	return l.baseURL + "/" + purpose + "/" + signed, nil
}

func (l *Links) Sign(purpose, tokenID, eventID string, expires time.Time) (string, error) {
	claims := LinkClaims{
		TokenID: tokenID,
		EventID: eventID,
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(l.now()),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(l.secret)
	if err != nil {
		return "", fmt.Errorf("sign %s link: %w", purpose, err)
	}
	return signed, nil
}

// Parse verifies a signed link value and checks it was issued for purpose.
func (l *Links) Parse(raw, purpose string) (*LinkClaims, error) {
	var claims LinkClaims
	tok, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		return l.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(l.now))
	if err != nil || !tok.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLink, err)
	}
	if claims.Purpose != purpose || claims.TokenID == "" {
		return nil, fmt.Errorf("%w: issued for %q", ErrInvalidLink, claims.Purpose)
	}
	return &claims, nil
}
