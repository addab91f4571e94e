// Package auth turns bearer tokens into the Principal the services authorize against.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"canteen-system/internal/apperr"
	"canteen-system/internal/logger"
	"canteen-system/internal/models"
	"canteen-system/internal/web"
)

// Claims are the signed details carried by an access token
type Claims struct {
	UserID  string   `json:"uid"`
	Role    string   `json:"role"`
	Outlets []string `json:"outlets,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator issues and validates HS256 tokens
type Authenticator struct {
	secret []byte
	ttl    time.Duration
}

// New creates an authenticator signing with secret
func New(secret string, ttl time.Duration) *Authenticator {
	return &Authenticator{secret: []byte(secret), ttl: ttl}
}

// IssueToken signs a token for the principal
func (a *Authenticator) IssueToken(p models.Principal) (string, error) {
	outlets := make([]string, len(p.Outlets))
	for i, id := range p.Outlets {
		outlets[i] = id.String()
	}

	claims := &Claims{
		UserID:  p.UserID.String(),
		Role:    string(p.Role),
		Outlets: outlets,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(a.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// ValidateToken parses a signed token into a principal
func (a *Authenticator) ValidateToken(signed string) (models.Principal, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(signed, claims, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return models.Principal{}, fmt.Errorf("invalid token: %w", err)
	}
	return claims.principal()
}

func (c *Claims) principal() (models.Principal, error) {
	userID, err := uuid.Parse(c.UserID)
	if err != nil {
		return models.Principal{}, fmt.Errorf("invalid uid claim: %w", err)
	}

	role := models.Role(c.Role)
	switch role {
	case models.RoleUser, models.RoleOperator, models.RoleApprover, models.RoleAdmin:
	default:
		return models.Principal{}, fmt.Errorf("unknown role %q", c.Role)
	}

	p := models.Principal{UserID: userID, Role: role}
	for _, raw := range c.Outlets {
		id, err := uuid.Parse(raw)
		if err != nil {
			return models.Principal{}, fmt.Errorf("invalid outlet claim: %w", err)
		}
		p.Outlets = append(p.Outlets, id)
	}
	return p, nil
}

type principalKey struct{}

// WithPrincipal stores p in ctx
func WithPrincipal(ctx context.Context, p models.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the authenticated principal stored in ctx
func PrincipalFrom(ctx context.Context) (models.Principal, error) {
	p, ok := ctx.Value(principalKey{}).(models.Principal)
	if !ok {
		return models.Principal{}, apperr.Unauthorized("authentication required")
	}
	return p, nil
}

var errMissingToken = errors.New("missing bearer token")

// Middleware rejects requests without a valid bearer token
func (a *Authenticator) Middleware(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := logger.RequestIDFrom(r.Context())

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			var (
				p   models.Principal
				err = errMissingToken
			)
			if ok && token != "" {
				p, err = a.ValidateToken(token)
			}
			if err != nil {
				log.Security("auth_failed", "Rejected request with invalid credentials", requestID, map[string]interface{}{
					"path":   r.URL.Path,
					"reason": err.Error(),
				})
				web.WriteErrorResponse(w, http.StatusUnauthorized, "Unauthorized", requestID)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}
