package ginserver

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	gin "github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"kindbossing/internal/app/middleware"
	"kindbossing/internal/domain/user"
)

const principalContextKey = "kindbossing.principal"

var ErrInvalidToken = errors.New("auth: invalid token")

// Claims is the bearer token payload. The subject is the user id.
type Claims struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// Authenticator verifies HS256 tokens issued by the account service.
type Authenticator struct {
	Secret []byte
	Issuer string
}

func (a Authenticator) Verify(raw string) (middleware.Actor, error) {
	if len(a.Secret) == 0 || raw == "" {
		return middleware.Actor{}, ErrInvalidToken
	}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.Issuer))
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return a.Secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return middleware.Actor{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return middleware.Actor{}, ErrInvalidToken
	}
	actor := middleware.Actor{ID: claims.Subject}
	for _, raw := range claims.Roles {
		role, err := user.ParseRole(raw)
		if err != nil {
			continue
		}
		actor.Roles = append(actor.Roles, role)
	}
	return actor, nil
}

// Issue signs a token for userID. Used by tests and the dev seed.
func (a Authenticator) Issue(userID string, roles []user.Role, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    a.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	for _, r := range roles {
		claims.Roles = append(claims.Roles, string(r))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.Secret)
}

type AuthMiddleware struct {
	Auth   Authenticator
	Logger *slog.Logger
}

// Handle resolves the bearer token into the request actor. Requests without
// a valid token continue anonymously; handlers decide whether that is enough.
func (m AuthMiddleware) Handle(c *gin.Context) {
	token := extractBearerToken(c.GetHeader("Authorization"))
	if token == "" {
		c.Next()
		return
	}
	actor, err := m.Auth.Verify(token)
	if err != nil {
		if m.Logger != nil {
			m.Logger.Debug("token validation failed", "error", err)
		}
		c.Next()
		return
	}
	setPrincipal(c, actor)
	c.Next()
}

func setPrincipal(c *gin.Context, actor middleware.Actor) {
	c.Set(principalContextKey, actor)
	c.Request = c.Request.WithContext(middleware.WithActor(c.Request.Context(), actor))
}

func currentPrincipal(c *gin.Context) (middleware.Actor, bool) {
	val, exists := c.Get(principalContextKey)
	if !exists {
		return middleware.Actor{}, false
	}
	p, ok := val.(middleware.Actor)
	return p, ok
}

func requireRole(c *gin.Context, role user.Role) (middleware.Actor, bool) {
	p, ok := currentPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "auth required"})
		return middleware.Actor{}, false
	}
	if role != "" && !p.HasRole(role) && !p.HasRole(user.RoleAdmin) {
		c.JSON(http.StatusForbidden, gin.H{"error": "insufficient permissions"})
		return middleware.Actor{}, false
	}
	return p, true
}

func extractBearerToken(header string) string {
	if header == "" {
		return ""
	}
	if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
