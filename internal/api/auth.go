package api

import (
	"errors"
	"net/http"
	"strings"

	"storefront-api/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const principalKey = "principal"

// Claims is the bearer token payload issued by the account service.
type Claims struct {
	UserID  string `json:"userId"`
	Email   string `json:"email"`
	IsAdmin bool   `json:"isAdmin"`
	jwt.RegisteredClaims
}

// Authenticator verifies HS256 bearer tokens.
type Authenticator struct {
	secret []byte
	parser *jwt.Parser
}

// NewAuthenticator creates an authenticator for tokens signed with secret.
func NewAuthenticator(secret string) (*Authenticator, error) {
	if secret == "" {
		return nil, errors.New("jwt secret must not be empty")
	}
	return &Authenticator{
		secret: []byte(secret),
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})),
	}, nil
}

// Principal verifies a raw token and returns the identity it carries.
func (a *Authenticator) Principal(raw string) (models.Principal, error) {
	var claims Claims
	_, err := a.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	})
	if err != nil {
		return models.Principal{}, err
	}
	if claims.UserID == "" {
		return models.Principal{}, errors.New("token has no user id")
	}
	return models.Principal{UserID: claims.UserID, Email: claims.Email, IsAdmin: claims.IsAdmin}, nil
}

// Required rejects requests without a valid bearer token and stores the principal.
func (a *Authenticator) Required() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			abort(c, http.StatusUnauthorized, "Access denied. No token provided.", "unauthenticated")
			return
		}

		principal, err := a.Principal(strings.TrimSpace(raw))
		if err != nil {
			abort(c, http.StatusUnauthorized, "Invalid or expired token", "unauthenticated")
			return
		}

		c.Set(principalKey, principal)
		c.Next()
	}
}

// RequireAdmin must run after Required.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !principalFrom(c).IsAdmin {
			abort(c, http.StatusForbidden, "Admin access required", "unauthorized")
			return
		}
		c.Next()
	}
}

func principalFrom(c *gin.Context) models.Principal {
	p, _ := c.Get(principalKey)
	principal, _ := p.(models.Principal)
	return principal
}
