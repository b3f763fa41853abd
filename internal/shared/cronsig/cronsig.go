// Package cronsig signs and checks the short-lived token that callers of the
// guard job endpoints send next to the cron marker header.
package cronsig

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	Header = "x-cron-signature"
	Issuer = "custodia-cron"

	DefaultTTL = 5 * time.Minute
)

var ErrMissing = errors.New("missing cron signature")

func Sign(secret []byte, job string, now time.Time, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	claims := jwt.RegisteredClaims{
		Issuer:    Issuer,
		Subject:   job,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign cron token: %w", err)
	}
	return tok, nil
}

// Verify checks signature, issuer and expiry. A token minted for one job is
// not accepted for another; an empty subject is accepted for any job.
func Verify(secret []byte, token, job string, now time.Time) error {
	if token == "" {
		return ErrMissing
	}
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		return fmt.Errorf("invalid cron signature: %w", err)
	}
	if claims.Subject != "" && claims.Subject != job {
		return fmt.Errorf("invalid cron signature: minted for %q", claims.Subject)
	}
	return nil
}
