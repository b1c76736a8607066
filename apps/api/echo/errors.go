package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/schoolsite/core"
)

var (
	errUnauthorized         = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errTokenRevoked         = echo.NewHTTPError(http.StatusUnauthorized, "token has been revoked")
	errAuthenticationFailed = echo.NewHTTPError(http.StatusBadRequest, "authentication failed")
	errAccountDeactivated   = echo.NewHTTPError(http.StatusForbidden, "account deactivated")
	errRefreshExpired       = echo.NewHTTPError(http.StatusForbidden, "refresh has expired")
	errHttpForbidden        = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errHttpNotFound         = echo.NewHTTPError(http.StatusNotFound, "not found")
	errFileTooLarge         = echo.NewHTTPError(http.StatusRequestEntityTooLarge, "uploaded file is too large")
)

// newAppHTTPErrorHandler renders errors as JSON: {"error": msg}, or {field: msg} for invalid input.
// Unexpected errors answer 500 and are reported with the acting principal; a shutdown error
// also calls signalShutdown.
func newAppHTTPErrorHandler(logger core.Logger, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		code, body, known := classifyError(err)
		if !known {
			args := []interface{}{errors.Wrap(err, "unhandled error")}
			if p := getContextPrincipal(ctx); p != nil {
				args = append(args, p)
			}
			logger.Error(http.StatusText(code), args...)
			if core.IsShutdown(err) {
				signalShutdown()
			}
			if ctx.Echo().Debug {
				body = err.Error()
			}
		}
		if msg, ok := body.(string); ok {
			body = echo.Map{"error": msg}
		}

		if ctx.Response().Committed {
			return
		}
		if ctx.Request().Method == http.MethodHead { // Issue #608
			err = ctx.NoContent(code)
		} else {
			err = ctx.JSON(code, body)
		}
		if err != nil {
			ctx.Echo().Logger.Error(err)
		}
	}
}

// classifyError maps err onto a status and a body. known is false for errors
// the API does not expect, which all answer 500.
func classifyError(err error) (code int, body interface{}, known bool) {
	if core.IsNotFound(err) {
		return errHttpNotFound.Code, errHttpNotFound.Message, true
	}

	switch cause := errors.Cause(err).(type) {
	case *echo.HTTPError:
		code, body = httpErrorBody(cause)
		return code, body, true
	case validator.ValidationErrors:
		return http.StatusBadRequest, core.TranslateErrors(cause, core.Translator), true
	case *core.ValidationError:
		if len(cause.Fields) == 0 {
			return http.StatusBadRequest, cause.Error(), true
		}
		fields := make(map[string]string, len(cause.Fields))
		for _, f := range cause.Fields {
			fields[f.Field] = f.Error
		}
		return http.StatusBadRequest, fields, true
	}
	return http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError), false
}

func httpErrorBody(he *echo.HTTPError) (int, interface{}) {
	// echo reports a missing token as a bad request
	if he == middleware.ErrJWTMissing {
		return http.StatusUnauthorized, he.Message
	}
	if inner, ok := he.Internal.(*echo.HTTPError); ok {
		he = inner
	}
	return he.Code, he.Message
}
