// Package auth authenticates companies against the API. A company exchanges
// its id and API secret for a short-lived JWT; every other endpoint requires
// that token and is scoped to the company it names.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	apperrors "automation-engine/internal/common/errors"
	"automation-engine/internal/common/logging"
	"automation-engine/internal/storage"
)

const defaultTokenTTL = time.Hour

type contextKey string

const companyIDKey contextKey = "company_id"

// Service issues and validates company tokens
type Service struct {
	store    storage.Storage
	secret   []byte
	tokenTTL time.Duration
	logger   logging.Logger
}

// NewService creates an auth service signing tokens with the given secret
func NewService(store storage.Storage, secret string, logger logging.Logger) (*Service, error) {
	if secret == "" {
		return nil, apperrors.ConfigError("jwt secret is required")
	}
	return &Service{
		store:    store,
		secret:   []byte(secret),
		tokenTTL: defaultTokenTTL,
		logger:   logger.WithFields(logging.Component("auth")),
	}, nil
}

// HashSecret hashes an API secret for storage alongside the company record
func HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// IssueToken verifies the company's API secret and returns a signed JWT
func (s *Service) IssueToken(ctx context.Context, companyID, apiSecret string) (string, error) {
	company, err := s.store.GetCompany(ctx, companyID)
	if errors.Is(err, storage.ErrNotFound) {
		// Same response as a bad secret so callers cannot probe for ids
		return "", apperrors.AuthError("invalid credentials")
	}
	if err != nil {
		return "", err
	}

	if bcrypt.CompareHashAndPassword([]byte(company.APISecretHash), []byte(apiSecret)) != nil {
		s.logger.Warn("Rejected credentials",
			logging.CompanyID(companyID),
		)
		return "", apperrors.AuthError("invalid credentials")
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub": company.ID,
		"iat": now.Unix(),
		"nbf": now.Unix(),
		"exp": now.Add(s.tokenTTL).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", apperrors.InternalError("failed to sign token", err)
	}
	return signed, nil
}

// ValidateToken checks the signature and expiry and returns the company id
func (s *Service) ValidateToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return "", apperrors.AuthError("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", apperrors.AuthError("invalid token claims")
	}
	companyID, _ := claims["sub"].(string)
	if companyID == "" {
		return "", apperrors.AuthError("token has no subject")
	}
	return companyID, nil
}

// Middleware enforces a valid bearer token and stashes the company id on
// the request context
func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}

		companyID, err := s.ValidateToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithCompanyID(r.Context(), companyID)))
	})
}

// WithCompanyID returns a context carrying the authenticated company id
func WithCompanyID(ctx context.Context, companyID string) context.Context {
	return context.WithValue(ctx, companyIDKey, companyID)
}

// CompanyID extracts the authenticated company id from the context
func CompanyID(ctx context.Context) (string, bool) {
	companyID, ok := ctx.Value(companyIDKey).(string)
	return companyID, ok && companyID != ""
}
