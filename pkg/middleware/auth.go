package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"citizen-reporting-system/pkg/response"
)

type contextKey string

const (
	UserContextKey contextKey = "user"
)

var ErrMissingToken = errors.New("missing token")

type UserClaims struct {
	UserID     string `json:"user_id"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	Role       string `json:"role"`
	Department string `json:"department"`
	AccessRole string `json:"access_role"`
	jwt.RegisteredClaims
}

// Authenticator validates HS256 tokens issued by the auth service.
type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

func (a *Authenticator) ParseToken(tokenString string) (*UserClaims, error) {
	if tokenString == "" {
		return nil, ErrMissingToken
	}
	token, err := jwt.ParseWithClaims(tokenString, &UserClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*UserClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("token has no user id")
	}
	return claims, nil
}

// TokenFromRequest reads a bearer token, falling back to the token query
// parameter EventSource clients have to use.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := a.ParseToken(TokenFromRequest(r))
		if errors.Is(err, ErrMissingToken) {
			response.Error(w, http.StatusUnauthorized, "Missing Authorization header", "")
			return
		}
		if err != nil {
			response.Error(w, http.StatusUnauthorized, "Invalid or expired token", err.Error())
			return
		}

		ctx := context.WithValue(r.Context(), UserContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func ClaimsFromContext(ctx context.Context) (*UserClaims, bool) {
	claims, ok := ctx.Value(UserContextKey).(*UserClaims)
	return claims, ok
}
