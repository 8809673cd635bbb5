// Package signing issues and verifies the tokens embedded in calendar
// subscription links, which calendar clients fetch without an Authorization header.
package signing

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const feedAudience = "timetable-feed"

var (
	ErrInvalidToken = errors.New("invalid feed token")
	ErrExpiredToken = errors.New("feed token expired")
)

// FeedSigner binds a subject string to an expiry with HS256.
type FeedSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewFeedSigner constructs a signer; ttl defaults to 24h.
func NewFeedSigner(secret string, ttl time.Duration) *FeedSigner {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &FeedSigner{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Sign returns a token for subject and its expiry.
func (s *FeedSigner) Sign(subject string) (string, time.Time, error) {
	if subject == "" {
		return "", time.Time{}, fmt.Errorf("subject required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("signing secret missing")
	}
	issuedAt := s.now().UTC().Truncate(time.Second)
	expiresAt := issuedAt.Add(s.ttl)
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Audience:  jwt.ClaimStrings{feedAudience},
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign feed token: %w", err)
	}
	return token, expiresAt, nil
}

// Verify checks the signature, audience and expiry of token and returns its subject.
func (s *FeedSigner) Verify(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(feedAudience),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
