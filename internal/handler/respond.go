package handler

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"cardledger/internal/auth"
	"cardledger/internal/errors"
	"cardledger/internal/model"
)

// fail converts a service error into an echo HTTP error with the standard body.
func fail(err error) error {
	httpErr := errors.MapErrorToHTTP(err)
	return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
}

func badRequest(message, code string) error {
	return echo.NewHTTPError(http.StatusBadRequest, errors.ErrorResponse{
		Error: message,
		Code:  code,
	})
}

func bindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return badRequest("invalid request body", "INVALID_REQUEST")
	}
	if err := c.Validate(req); err != nil {
		return badRequest(err.Error(), "VALIDATION_ERROR")
	}
	return nil
}

func pathID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, badRequest("invalid "+name, "INVALID_UUID")
	}
	return id, nil
}

func pageParams(c echo.Context) (model.Page, error) {
	var page model.Page
	if err := (&echo.DefaultBinder{}).BindQueryParams(c, &page); err != nil {
		return model.Page{}, badRequest("invalid pagination parameters", "INVALID_REQUEST")
	}
	return page, nil
}

func callerOf(c echo.Context) (model.Caller, error) {
	caller, ok := auth.CallerFromContext(c)
	if !ok {
		return model.Caller{}, echo.NewHTTPError(http.StatusUnauthorized, errors.ErrorResponse{
			Error: "unauthenticated",
			Code:  "UNAUTHORIZED",
		})
	}
	return caller, nil
}
