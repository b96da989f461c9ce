package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

// CORS allows browser dashboards on the given comma separated origins to
// submit messages. Devices do not send Origin and are unaffected.
func CORS(origins string) fiber.Handler {
	if origins == "" {
		origins = "http://localhost:3000,http://127.0.0.1:3000"
	}
	return cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization," + HeaderRequestID + "," + HeaderSecret,
		AllowCredentials: false,
		ExposeHeaders:    "Content-Length," + HeaderRequestID,
		MaxAge:           3600,
	})
}
