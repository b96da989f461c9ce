package middleware

import (
	"crypto/subtle"
	"encoding/json"

	"github.com/gofiber/fiber/v2"
)

const HeaderSecret = "X-SMSSync-Secret"

// Secret rejects requests that do not carry the shared device secret. The
// device may send it as a query parameter, a form field, a JSON field or a
// header. An empty secret disables the check.
func Secret(secret string) fiber.Handler {
	want := []byte(secret)
	return func(c *fiber.Ctx) error {
		if secret == "" {
			return c.Next()
		}
		if subtle.ConstantTimeCompare([]byte(presented(c)), want) != 1 {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid secret")
		}
		return c.Next()
	}
}

func presented(c *fiber.Ctx) string {
	if s := c.Get(HeaderSecret); s != "" {
		return s
	}
	if s := c.Query("secret"); s != "" {
		return s
	}
	if c.Is("json") {
		var body struct {
			Secret string `json:"secret"`
		}
		if err := json.Unmarshal(c.Body(), &body); err == nil {
			return body.Secret
		}
		return ""
	}
	return c.FormValue("secret")
}
