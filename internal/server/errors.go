package server

import "github.com/labstack/echo/v4"

// errJSON writes the {"error": ..., "message": ...} body shape used
// across every handler in this package.
func errJSON(c echo.Context, status int, code, message string) error {
	return c.JSON(status, map[string]string{
		"error":   code,
		"message": message,
	})
}
