// Package auth issues and verifies the bearer tokens that bind a request to
// the user it acts for.
package auth

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

type Service struct {
	issuer string
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewService(issuer string, secret []byte, ttl time.Duration) *Service {
	return &Service{issuer: issuer, secret: secret, ttl: ttl, now: time.Now}
}

// IssueToken signs an HS256 token whose subject is the user id.
func (s *Service) IssueToken(userID int64) (string, error) {
	if userID <= 0 {
		return "", errors.New("user id must be positive")
	}
	now := s.now().UTC()
	claims := jwt.RegisteredClaims{
		Issuer:    s.issuer,
		Subject:   strconv.FormatInt(userID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(s.secret)
}

// ParseToken verifies signature, issuer and expiry and returns the user id.
func (s *Service) ParseToken(token string) (int64, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return s.secret, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithTimeFunc(s.now))
	if err != nil {
		return 0, errors.Join(ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || !parsed.Valid {
		return 0, ErrInvalidToken
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return 0, errors.Join(ErrInvalidToken, errors.New("invalid subject"))
	}
	return userID, nil
}
