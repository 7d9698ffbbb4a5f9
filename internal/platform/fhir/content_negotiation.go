package fhir

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// FHIRContentType is the FHIR JSON content type with charset.
const FHIRContentType = "application/fhir+json; charset=utf-8"

// ContentNegotiationMiddleware tags responses as FHIR JSON. The _format query
// parameter takes precedence over Accept; XML and unknown formats get 406.
func ContentNegotiationMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if format := c.QueryParam("_format"); format != "" {
				if !isJSONFormat(format) {
					return JSON(c, http.StatusNotAcceptable, ErrorOutcome("unsupported _format value: "+format+"; use application/fhir+json"))
				}
			} else if accept := c.Request().Header.Get(echo.HeaderAccept); accept != "" && !negotiateAccept(accept) {
				return JSON(c, http.StatusNotAcceptable, ErrorOutcome("Accept header does not include a supported FHIR content type; use application/fhir+json"))
			}

			c.Response().Header().Set(echo.HeaderContentType, FHIRContentType)
			return next(c)
		}
	}
}

// JSON writes v with the FHIR content type.
func JSON(c echo.Context, status int, v interface{}) error {
	c.Response().Header().Set(echo.HeaderContentType, FHIRContentType)
	return c.JSON(status, v)
}

// normalizeFormat restores the "+" that query-string decoding turns into a space.
func normalizeFormat(raw string) string {
	f := strings.TrimSpace(strings.ToLower(raw))
	return strings.ReplaceAll(f, "fhir json", "fhir+json")
}

func isJSONFormat(format string) bool {
	switch normalizeFormat(format) {
	case "json", "application/json", "application/fhir+json":
		return true
	}
	return false
}

func negotiateAccept(accept string) bool {
	for _, part := range strings.Split(accept, ",") {
		mediaType, _, _ := strings.Cut(part, ";")
		switch strings.ToLower(strings.TrimSpace(mediaType)) {
		case "application/fhir+json", "application/json", "json", "application/*", "*/*":
			return true
		}
	}
	return false
}
