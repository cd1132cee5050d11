// Package middleware resolves the operator behind a request.
package middleware

import (
	"errors"
	"fmt"
	"strings"

	"github.com/amirasaad/treasury/pkg/config"
	jwtware "github.com/gofiber/contrib/jwt"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// OperatorKey is the fiber.Ctx locals key holding the operator id.
const OperatorKey = "operator"

const tokenKey = "operator_token"

var errMalformed = errors.New("Missing or malformed JWT")

// Protected requires an operator identity. With a JWT secret configured the
// identity is the subject of an HS256 bearer token; without one the
// configured header is trusted.
func Protected(cfg *config.Auth) fiber.Handler {
	if cfg == nil {
		cfg = &config.Auth{}
	}
	header := cfg.OperatorHead
	if header == "" {
		header = "X-Operator-ID"
	}
	var secret, issuer string
	if cfg.Jwt != nil {
		secret, issuer = cfg.Jwt.Secret, cfg.Jwt.Issuer
	}

	if secret != "" {
		return jwtBearer(secret, issuer)
	}

	return func(c *fiber.Ctx) error {
		op := strings.TrimSpace(c.Get(header))
		if op == "" {
			return jwtError(c, fmt.Errorf("missing %s header", header))
		}
		c.Locals(OperatorKey, op)
		return c.Next()
	}
}

// jwtBearer validates HS256 bearer tokens and stores their subject as the
// operator.
func jwtBearer(secret, issuer string) fiber.Handler {
	return jwtware.New(jwtware.Config{
		SigningKey: jwtware.SigningKey{JWTAlg: jwt.SigningMethodHS256.Alg(), Key: []byte(secret)},
		ContextKey: tokenKey,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if errors.Is(err, jwtware.ErrJWTMissingOrMalformed) ||
				strings.EqualFold(err.Error(), errMalformed.Error()) {
				return jwtError(c, errMalformed)
			}
			return jwtError(c, err)
		},
		SuccessHandler: func(c *fiber.Ctx) error {
			token, _ := c.Locals(tokenKey).(*jwt.Token)
			if token == nil {
				return jwtError(c, errMalformed)
			}
			if issuer != "" {
				iss, err := token.Claims.GetIssuer()
				if err != nil || iss != issuer {
					return jwtError(c, jwt.ErrTokenInvalidIssuer)
				}
			}
			sub, err := token.Claims.GetSubject()
			if err != nil || sub == "" {
				return jwtError(c, errors.New("token has no subject"))
			}
			c.Locals(OperatorKey, sub)
			return c.Next()
		},
	})
}

// Operator returns the identity set by Protected.
func Operator(c *fiber.Ctx) string {
	op, _ := c.Locals(OperatorKey).(string)
	return op
}

func jwtError(c *fiber.Ctx, err error) error {
	status := fiber.StatusUnauthorized
	title := "Invalid or expired JWT"
	if err.Error() == errMalformed.Error() {
		status = fiber.StatusBadRequest
		title = "Missing or malformed JWT"
	}
	c.Set(fiber.HeaderContentType, "application/problem+json")
	return c.Status(status).JSON(fiber.Map{
		"type":   "about:blank",
		"title":  title,
		"status": status,
		"detail": err.Error(),
	})
}
