package fhir

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// ErrorHandler renders every error that reaches Echo as an OperationOutcome.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		var outcome *OperationOutcome
		var he *echo.HTTPError

		if ve, ok := AsValidationError(err); ok {
			status = http.StatusBadRequest
			outcome = ValidationOutcome(ve)
		} else if errors.As(err, &he) {
			status = he.Code
			msg := fmt.Sprintf("%v", he.Message)
			code := IssueTypeProcessing
			switch status {
			case http.StatusNotFound:
				code = IssueTypeNotFound
			case http.StatusTooManyRequests:
				code = IssueTypeThrottled
			case http.StatusGatewayTimeout:
				code = IssueTypeTimeout
			}
			outcome = NewOperationOutcome(IssueSeverityError, code, msg)
		} else {
			outcome = ErrorOutcome(err.Error())
		}

		if status >= http.StatusInternalServerError {
			logger.Error().Err(err).Str("path", c.Request().URL.Path).Msg("request failed")
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = JSON(c, status, outcome)
		}
		if werr != nil {
			logger.Error().Err(werr).Msg("write error response")
		}
	}
}

