// auth/auth.go
package auth

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
)

// Header carries the shared secret on every API request.
const Header = "X-MyWorld-Token"

var ErrEmptyPassword = errors.New("password must not be empty")

// HashPassword returns the bcrypt hash stored in server.password_hash.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Middleware rejects requests whose token does not match passwordHash.
// Browsers cannot set headers on an EventSource, so the token may also come
// in the "token" query parameter. An empty hash disables the check.
func Middleware(passwordHash string) fiber.Handler {
	if passwordHash == "" {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	hash := []byte(passwordHash)

	return func(c *fiber.Ctx) error {
		token := c.Get(Header)
		if token == "" {
			token = c.Query("token")
		}
		if token == "" || bcrypt.CompareHashAndPassword(hash, []byte(token)) != nil {
			return fiber.ErrUnauthorized
		}
		return c.Next()
	}
}
