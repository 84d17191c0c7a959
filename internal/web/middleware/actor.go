package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/JonMunkholm/dataimport/internal/core"
)

// ActorHeader names the acting user when no JWT secret is configured.
const ActorHeader = "X-Actor"

// ActorClaims are the bearer token claims. The subject is the actor id.
type ActorClaims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Actor resolves the acting user and stores it with core.ContextWithActor.
//
// With a secret, requests must carry "Authorization: Bearer <HS256 token>"
// whose subject becomes the actor. Without one, the X-Actor header is used
// as given, which suits deployments behind an authenticating proxy.
func Actor(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var actor string
			if secret == "" {
				actor = strings.TrimSpace(r.Header.Get(ActorHeader))
			} else {
				claims, err := parseBearer(r.Header.Get("Authorization"), secret)
				if err != nil {
					slog.Warn("auth: rejected bearer token",
						"path", r.URL.Path,
						"remote_addr", r.RemoteAddr,
						"error", err,
					)
					reject(w, http.StatusUnauthorized, "AUTH003", "Invalid or missing token", "Sign in again to get a fresh token")
					return
				}
				actor = claims.Subject
			}

			ctx := core.ContextWithActor(r.Context(), actor)
			ctx = core.ContextWithIPAddress(ctx, r.RemoteAddr)
			ctx = core.ContextWithUserAgent(ctx, r.UserAgent())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func parseBearer(header, secret string) (*ActorClaims, error) {
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return nil, fmt.Errorf("missing bearer token")
	}

	claims := &ActorClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}
