package fhir

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

const HeaderPrefer = "Prefer"

// Prefer return values for create and update.
const (
	ReturnMinimal          = "minimal"
	ReturnRepresentation   = "representation"
	ReturnOperationOutcome = "OperationOutcome"
)

// PreferReturn extracts the return directive from a Prefer header value.
// Handles "return=minimal", "return=minimal; handling=strict" and
// "handling=strict, return=minimal".
func PreferReturn(prefer string) string {
	for _, part := range strings.FieldsFunc(prefer, func(r rune) bool { return r == ';' || r == ',' }) {
		if v, ok := strings.CutPrefix(strings.TrimSpace(part), "return="); ok {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// WriteResource answers a write with the body the client's Prefer header
// asks for. Without one the full resource is returned.
func WriteResource(c echo.Context, status int, r Resource) error {
	switch PreferReturn(c.Request().Header.Get(HeaderPrefer)) {
	case ReturnMinimal:
		c.Response().Header().Set(echo.HeaderContentType, FHIRContentType)
		return c.NoContent(status)
	case ReturnOperationOutcome:
		msg := FormatReference(r.ResourceType(), r.ResourceID()) + " " + strings.ToLower(http.StatusText(status))
		return JSON(c, status, NewOperationOutcome(IssueSeverityInformation, IssueTypeInformational, msg))
	}
	return JSON(c, status, r.ToFHIR())
}
