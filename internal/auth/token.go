package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	claimSubject = "sub"
	// DefaultSubject names tokens minted by the CLI.
	DefaultSubject = "jobrelay-cli"
)

var ErrInvalidToken = errors.New("invalid token")

// GenerateToken creates an HS256 JWT signed with the API key.
func GenerateToken(subject, apiKey string, expiresIn time.Duration) (string, time.Time, error) {
	if strings.TrimSpace(subject) == "" {
		subject = DefaultSubject
	}
	if strings.TrimSpace(apiKey) == "" {
		return "", time.Time{}, fmt.Errorf("api key is required")
	}
	if expiresIn <= 0 {
		return "", time.Time{}, fmt.Errorf("jwt expires in must be positive")
	}

	now := time.Now().UTC()
	expiresAt := now.Add(expiresIn)
	claims := jwt.MapClaims{
		claimSubject: subject,
		"iat":        now.Unix(),
		"exp":        expiresAt.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(apiKey))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ParseToken verifies raw against apiKey. Only HS256 tokens with an
// unexpired exp claim are accepted.
func ParseToken(raw, apiKey string) (*jwt.Token, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("%w: no api key configured", ErrInvalidToken)
	}
	token, err := jwt.Parse(raw, func(*jwt.Token) (interface{}, error) {
		return []byte(apiKey), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return token, nil
}

// SubjectFromToken returns the sub claim, or "" when absent.
func SubjectFromToken(token *jwt.Token) string {
	if token == nil {
		return ""
	}
	sub, err := token.Claims.GetSubject()
	if err != nil {
		return ""
	}
	return sub
}
