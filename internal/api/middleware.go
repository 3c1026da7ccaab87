package api

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

const (
	localUserID  = "user_id"
	headerUserID = "X-User-ID"
)

type userClaims struct {
	UID string `json:"uid,omitempty"`
	jwt.RegisteredClaims
}

// identify stores the caller's user ID in c.Locals. Requests without
// credentials pass through anonymously; invalid credentials are rejected.
func (s *Server) identify(c *fiber.Ctx) error {
	if s.jwtSecret == "" {
		if uid := strings.TrimSpace(c.Get(headerUserID)); uid != "" {
			c.Locals(localUserID, uid)
		}
		return c.Next()
	}

	auth := c.Get(fiber.HeaderAuthorization)
	if auth == "" {
		return c.Next()
	}
	if len(auth) < 7 || !strings.EqualFold(auth[:7], "bearer ") {
		return fiber.NewError(fiber.StatusUnauthorized, "authorization must be a bearer token")
	}

	var claims userClaims
	token, err := jwt.ParseWithClaims(
		strings.TrimSpace(auth[7:]),
		&claims,
		func(*jwt.Token) (any, error) { return []byte(s.jwtSecret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil || !token.Valid {
		return fiber.NewError(fiber.StatusUnauthorized, "invalid token")
	}

	uid := claims.UID
	if uid == "" {
		uid = claims.Subject
	}
	if uid == "" {
		return fiber.NewError(fiber.StatusUnauthorized, "token has no uid or sub claim")
	}
	c.Locals(localUserID, uid)
	return c.Next()
}

// requireUser rejects anonymous requests.
func (s *Server) requireUser(c *fiber.Ctx) error {
	if userID(c) == "" {
		return fiber.NewError(fiber.StatusUnauthorized, "authentication required")
	}
	return c.Next()
}

func userID(c *fiber.Ctx) string {
	uid, _ := c.Locals(localUserID).(string)
	return uid
}
