package handlers

import "github.com/labstack/echo/v4"

// bindJSON treats a body without Content-Type as JSON. Webhook senders
// often omit the header.
func bindJSON(c echo.Context, out any) error {
	r := c.Request()
	if r.Header.Get(echo.HeaderContentType) == "" {
		r.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	return c.Bind(out)
}
