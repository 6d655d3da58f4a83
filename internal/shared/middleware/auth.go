package middleware

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/tradelane/payhook/internal/shared/errors"
)

const (
	// AuthorizationHeader is the header key for authorization.
	AuthorizationHeader = "Authorization"
	// BearerPrefix is the prefix for bearer tokens.
	BearerPrefix = "Bearer "
	// OperatorKey is the gin context key for the authenticated operator.
	OperatorKey = "operator"
)

// ErrInvalidToken is returned for tokens that fail validation.
var ErrInvalidToken = errors.New("invalid token")

// OperatorClaims are the claims carried by operator API tokens.
type OperatorClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role,omitempty"`
}

// OperatorTokens signs and validates operator tokens with a shared HMAC secret.
type OperatorTokens struct {
	secret []byte
	issuer string
}

// NewOperatorTokens creates an operator token manager.
func NewOperatorTokens(secret, issuer string) *OperatorTokens {
	return &OperatorTokens{secret: []byte(secret), issuer: issuer}
}

// Issue signs a token for subject valid for ttl.
func (t *OperatorTokens) Issue(subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &OperatorClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: "operator",
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign operator token: %w", err)
	}
	return signed, nil
}

// Validate parses and validates a token string.
func (t *OperatorTokens) Validate(tokenString string) (*OperatorClaims, error) {
	if len(t.secret) == 0 {
		return nil, fmt.Errorf("%w: operator api disabled", ErrInvalidToken)
	}

	token, err := jwt.ParseWithClaims(tokenString, &OperatorClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithIssuer(t.issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*OperatorClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// TokenValidator validates operator bearer tokens.
type TokenValidator interface {
	Validate(token string) (*OperatorClaims, error)
}

// RequireOperator returns a middleware that rejects requests without a valid operator token.
func RequireOperator(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearerToken(c)
		if token == "" {
			abort(c, apperrors.Unauthorized("UNAUTHORIZED", "Authorization header required"))
			return
		}

		claims, err := validator.Validate(token)
		if err != nil {
			abort(c, apperrors.Unauthorized("INVALID_TOKEN", "Invalid or expired token"))
			return
		}

		c.Set(OperatorKey, claims.Subject)
		c.Next()
	}
}

func abort(c *gin.Context, err *apperrors.AppError) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(err.StatusCode, err.ToResponse())
}

// GetOperator returns the authenticated operator subject, or empty.
func GetOperator(c *gin.Context) string {
	return c.GetString(OperatorKey)
}

func extractBearerToken(c *gin.Context) string {
	authHeader := c.GetHeader(AuthorizationHeader)
	if !strings.HasPrefix(authHeader, BearerPrefix) {
		return ""
	}
	return strings.TrimPrefix(authHeader, BearerPrefix)
}
