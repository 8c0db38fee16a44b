package auth

import (
	"net/http"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"

	apperr "cardledger/internal/errors"
	"cardledger/internal/model"
)

const callerKey = "caller"

// Middleware verifies the bearer token and stores the caller on the context.
func Middleware(secret string) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		SigningKey:  []byte(secret),
		TokenLookup: "header:" + echo.HeaderAuthorization + ":Bearer ",
		NewClaimsFunc: func(c echo.Context) jwt.Claims {
			return new(Claims)
		},
		SuccessHandler: func(c echo.Context) {
			token, ok := c.Get("user").(*jwt.Token)
			if !ok {
				return
			}
			claims, ok := token.Claims.(*Claims)
			if !ok {
				return
			}
			if caller, err := claims.Caller(); err == nil {
				SetCaller(c, caller)
			}
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return echo.NewHTTPError(http.StatusUnauthorized, apperr.ErrorResponse{
				Error: "missing or invalid token",
				Code:  "UNAUTHORIZED",
			})
		},
	})
}

// SetCaller stores caller on the request context.
func SetCaller(c echo.Context, caller model.Caller) {
	c.Set(callerKey, caller)
}

// CallerFromContext returns the authenticated caller set by Middleware.
func CallerFromContext(c echo.Context) (model.Caller, bool) {
	caller, ok := c.Get(callerKey).(model.Caller)
	return caller, ok
}

// RequireCaller rejects requests whose token carried no usable identity.
func RequireCaller(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, ok := CallerFromContext(c); !ok {
			return echo.NewHTTPError(http.StatusUnauthorized, apperr.ErrorResponse{
				Error: "token carries no valid identity",
				Code:  "UNAUTHORIZED",
			})
		}
		return next(c)
	}
}

// RequireAdmin rejects callers without the ADMIN role.
func RequireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		caller, ok := CallerFromContext(c)
		if !ok || !caller.IsAdmin() {
			httpErr := apperr.MapErrorToHTTP(apperr.ErrForbidden)
			return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
		}
		return next(c)
	}
}
