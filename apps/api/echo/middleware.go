package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/schoolsite/core/auth"
	tokensvc "github.com/trezcool/schoolsite/services/tokens"
)

// newJWTMiddleware validates the bearer token and rejects revoked ones.
func newJWTMiddleware(tokens *TokenIssuer, denylist tokensvc.Denylist) echo.MiddlewareFunc {
	jwt := middleware.JWTWithConfig(tokens.jwtConfig())
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return jwt(func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return err
			}
			revoked, err := denylist.IsRevoked(ctx.Request().Context(), claims.Id)
			if err != nil {
				return errors.Wrap(err, "checking token revocation")
			}
			if revoked {
				return errTokenRevoked
			}
			return next(ctx)
		})
	}
}

// requireMiddleware admits the request principal only when it satisfies req.
// It must run after the JWT middleware.
func requireMiddleware(req auth.Requirement) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			switch auth.Authorize(getContextPrincipal(ctx), req) {
			case nil:
				return next(ctx)
			case auth.ErrUnauthenticated:
				return errUnauthorized
			default:
				return errHttpForbidden
			}
		}
	}
}
