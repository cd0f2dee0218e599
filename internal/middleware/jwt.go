// internal/middleware/jwt.go
package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"connect-you/internal/utils"

	"github.com/golang-jwt/jwt/v5"
)

// Token expiration time - 24 hours
const tokenExpiration = 24 * time.Hour

const tokenIssuer = "connect-you-api"

// Claims represents the JWT claims issued by the account service
type Claims struct {
	UserID string `json:"userId"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Auth validates bearer tokens signed with a shared HMAC secret.
type Auth struct {
	secret []byte
}

func NewAuth(secret string) *Auth {
	return &Auth{secret: []byte(secret)}
}

// GenerateToken creates a new JWT token for the given user ID
func (a *Auth) GenerateToken(userID, role string) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenExpiration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
			Subject:   userID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// ValidateToken validates the provided JWT token
func (a *Auth) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenString,
		&Claims{},
		func(token *jwt.Token) (interface{}, error) {
			// Verify signing method
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return a.secret, nil
		},
	)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if strings.TrimSpace(claims.UserID) == "" {
		return nil, errors.New("token carries no user id")
	}
	return claims, nil
}

// RequireAuth rejects requests without a valid bearer token.
func (a *Auth) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := a.claimsFromRequest(r)
		if err != nil {
			writeAuthError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(SetClaimsInContext(r.Context(), claims)))
	})
}

// OptionalAuth attaches the caller's identity when a valid token is present.
// A malformed or expired token is still rejected.
func (a *Auth) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			next.ServeHTTP(w, r)
			return
		}
		claims, err := a.claimsFromRequest(r)
		if err != nil {
			writeAuthError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(SetClaimsInContext(r.Context(), claims)))
	})
}

func (a *Auth) claimsFromRequest(r *http.Request) (*Claims, error) {
	// Extract Authorization header
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, utils.NewUnauthorizedError("authorization header required")
	}

	// Check for Bearer token format
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return nil, utils.NewUnauthorizedError("invalid authorization format")
	}

	claims, err := a.ValidateToken(strings.TrimPrefix(authHeader, "Bearer "))
	if err != nil {
		return nil, utils.NewAppError(utils.ErrInvalidToken, "Invalid or expired token", err)
	}
	return claims, nil
}

func writeAuthError(w http.ResponseWriter, err error) {
	code := utils.ErrUnauthorized
	if appErr, ok := utils.AsAppError(err); ok && utils.IsAuthError(err) {
		code = appErr.Code
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{
		"message": utils.ClientMessage(err),
		"error":   code,
	})
}

// Define a custom context key type to avoid collisions
type contextKey string

const claimsKey contextKey = "claims"

// SetClaimsInContext saves the caller's claims in the request context
func SetClaimsInContext(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// GetUserIDFromContext retrieves the authenticated user ID from the context
func GetUserIDFromContext(ctx context.Context) (string, bool) {
	claims, ok := ctx.Value(claimsKey).(*Claims)
	if !ok || claims == nil {
		return "", false
	}
	return claims.UserID, true
}
