package serverutils

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const userIdLocal = "user_id"

// RevocationChecker reports whether a token was revoked before it expired.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, token string) (bool, error)
}

type JwtConfig struct {
	Secret  string
	Revoked RevocationChecker
	// AllowAnonymous lets requests through when no secret is configured.
	AllowAnonymous bool
}

func NewJwtMiddleware(cfg JwtConfig) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		if cfg.Secret == "" {
			if cfg.AllowAnonymous {
				return ctx.Next()
			}
			return ctx.Status(fiber.StatusUnauthorized).JSON(ErrorResponse(fiber.StatusUnauthorized, "Authentication is not configured"))
		}

		authHeader := ctx.Get("Authorization")
		if len(authHeader) < 7 || authHeader[:7] != "Bearer " {
			return ctx.Status(fiber.StatusUnauthorized).JSON(ErrorResponse(fiber.StatusUnauthorized, "Missing token"))
		}
		tokenStr := authHeader[7:]

		token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return []byte(cfg.Secret), nil
		})
		if err != nil || !token.Valid {
			return ctx.Status(fiber.StatusUnauthorized).JSON(ErrorResponse(fiber.StatusUnauthorized, "Invalid token"))
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return ctx.Status(fiber.StatusUnauthorized).JSON(ErrorResponse(fiber.StatusUnauthorized, "Invalid claims"))
		}

		if cfg.Revoked != nil {
			revoked, err := cfg.Revoked.IsRevoked(ctx.UserContext(), tokenStr)
			if err != nil {
				return ctx.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse(fiber.StatusServiceUnavailable, "Unable to verify token"))
			}
			if revoked {
				return ctx.Status(fiber.StatusUnauthorized).JSON(ErrorResponse(fiber.StatusUnauthorized, "Token has been revoked"))
			}
		}

		ctx.Locals(userIdLocal, claims["user_id"])
		return ctx.Next()
	}
}

var ErrNoUser = errors.New("no authenticated user")

// UserId returns the owner id carried by the token's user_id claim.
func UserId(ctx *fiber.Ctx) (uuid.UUID, error) {
	raw, ok := ctx.Locals(userIdLocal).(string)
	if !ok || raw == "" {
		return uuid.Nil, ErrNoUser
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrNoUser, err)
	}
	return id, nil
}
