/*
auth.go - Bearer token identity

PURPOSE:
  Turns an "Authorization: Bearer <jwt>" header into a billing.Actor on the
  request context. Tokens are HS256, signed with JWT_SECRET.

  The token only names the caller. Role and active flag are read from the
  store on every request, so a deactivated account loses access at once
  and a role change takes effect without reissuing tokens.

RESPONSES:
  401  missing, malformed, expired or foreign token; unknown user
  403  account deactivated; wrong role for the route

SEE ALSO:
  - cmd/devtoken: Issues tokens for local testing
  - server.go: Where the middleware is mounted
*/
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/warp/consult-ledger/billing"
	"github.com/warp/consult-ledger/config"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims are the JWT claims issued for marketplace users.
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator issues and verifies bearer tokens.
type Authenticator struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewAuthenticator(cfg config.JWTConfig) *Authenticator {
	return &Authenticator{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		ttl:    cfg.TTL,
		now:    time.Now,
	}
}

// IssueToken signs a token for u.
func (a *Authenticator) IssueToken(u billing.User) (string, error) {
	now := a.now()
	claims := Claims{
		UserID: string(u.ID),
		Email:  u.Email,
		Role:   string(u.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(u.ID),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    a.issuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// ParseToken verifies signature, issuer and expiry.
func (a *Authenticator) ParseToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(a.issuer),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// =============================================================================
// CONTEXT
// =============================================================================

type actorKey struct{}

// WithActor returns ctx carrying actor.
func WithActor(ctx context.Context, actor billing.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom returns the authenticated caller.
func ActorFrom(ctx context.Context) (billing.Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(billing.Actor)
	return actor, ok
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

// Authenticate resolves the bearer token to an active user.
func (h *Handler) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token", nil)
			return
		}

		claims, err := h.Auth.ParseToken(strings.TrimSpace(raw))
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error(), nil)
			return
		}

		user, err := h.Store.GetUser(r.Context(), billing.UserID(claims.UserID))
		if err != nil {
			h.logger.Error("identity lookup failed", zap.String("user_id", claims.UserID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal error", nil)
			return
		}
		if user == nil {
			writeError(w, http.StatusUnauthorized, "unknown user", nil)
			return
		}
		if !user.Active {
			writeError(w, http.StatusForbidden, "account is deactivated", nil)
			return
		}

		actor := billing.Actor{ID: user.ID, Role: user.Role, Name: user.Name}
		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}

// RequireRole rejects callers whose role is not role.
func RequireRole(role billing.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFrom(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "not authenticated", nil)
				return
			}
			if actor.Role != role {
				writeError(w, http.StatusForbidden, "requires role "+string(role), nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
