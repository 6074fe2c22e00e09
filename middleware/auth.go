package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"gymtalk/models"
)

const identityKey = "identity"

var (
	ErrNoToken      = errors.New("no authorization token provided")
	ErrBadHeader    = errors.New("format should be: Bearer <token>")
	ErrInvalidToken = errors.New("token validation failed")
)

// Claims are issued by the gym application's identity service.
type Claims struct {
	UserID string      `json:"userId"`
	Name   string      `json:"name,omitempty"`
	Role   models.Role `json:"role"`
	Scopes []string    `json:"scopes,omitempty"`
	jwt.RegisteredClaims
}

// TokenFromRequest reads a bearer token from the Authorization header, or
// from the token query parameter for browser websocket upgrades.
func TokenFromRequest(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		if token := r.URL.Query().Get("token"); token != "" {
			return token, nil
		}
		return "", ErrNoToken
	}
	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", ErrBadHeader
	}
	return parts[1], nil
}

// ParseToken verifies an HMAC-signed token and returns the caller identity.
func ParseToken(secret []byte, tokenString string) (models.Identity, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return models.Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || !models.ValidUserID(claims.UserID) || !claims.Role.Valid() {
		return models.Identity{}, ErrInvalidToken
	}
	return models.Identity{
		UserID: claims.UserID,
		Name:   claims.Name,
		Role:   claims.Role,
		Scopes: claims.Scopes,
	}, nil
}

func JWTAuthMiddleware(secret string) gin.HandlerFunc {
	key := []byte(secret)
	return func(c *gin.Context) {
		// CORS preflight
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		tokenString, err := TokenFromRequest(c.Request)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "Authentication required",
				"message": err.Error(),
			})
			return
		}

		identity, err := ParseToken(key, tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "Invalid token",
				"message": ErrInvalidToken.Error(),
			})
			return
		}

		c.Set(identityKey, identity)
		c.Set("userId", identity.UserID)
		c.Next()
	}
}

// IdentityFrom returns the identity set by JWTAuthMiddleware.
func IdentityFrom(c *gin.Context) (models.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return models.Identity{}, false
	}
	identity, ok := v.(models.Identity)
	return identity, ok
}

// SetIdentity is used by handler tests to bypass token parsing.
func SetIdentity(c *gin.Context, identity models.Identity) {
	c.Set(identityKey, identity)
	c.Set("userId", identity.UserID)
}
