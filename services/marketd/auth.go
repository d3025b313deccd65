package main

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Role represents an authorized persona for the admin surface.
type Role string

const (
	// RoleAdmin may toggle the circuit breaker and manage royalty policy.
	RoleAdmin Role = "admin"
	// RoleOperator may read the audit surface but not mutate flags.
	RoleOperator Role = "operator"
)

var errMissingBearer = errors.New("missing bearer token")

// AdminAuth validates HS256 bearer tokens on the admin routes.
type AdminAuth struct {
	secret []byte
}

func NewAdminAuth(secret string) *AdminAuth {
	trimmed := strings.TrimSpace(secret)
	if trimmed == "" {
		return nil
	}
	return &AdminAuth{secret: []byte(trimmed)}
}

// Authenticate extracts and verifies the bearer token, returning the role
// claim. Expired and malformed tokens are rejected.
func (a *AdminAuth) Authenticate(r *http.Request) (Role, error) {
	if a == nil {
		return "", errors.New("admin surface disabled: no secret configured")
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", errMissingBearer
	}
	raw := strings.TrimSpace(header[len(prefix):])

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithExpirationRequired())
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", errors.New("invalid token")
	}
	role, _ := claims["role"].(string)
	switch Role(role) {
	case RoleAdmin, RoleOperator:
		return Role(role), nil
	default:
		return "", fmt.Errorf("unknown role %q", role)
	}
}

// IssueToken mints a short-lived admin token. Exposed for tests and the
// operator CLI.
func (a *AdminAuth) IssueToken(role Role, ttl time.Duration) (string, error) {
	if a == nil {
		return "", errors.New("admin surface disabled: no secret configured")
	}
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"role": string(role),
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	})
	return token.SignedString(a.secret)
}
