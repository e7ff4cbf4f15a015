package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"neurolov_billing/internal/apperrors"
)

// errorBody is the JSON envelope every failed request gets. No raw error
// ever crosses the boundary.
type errorBody struct {
	Success bool             `json:"success"`
	Error   *apperrors.Error `json:"error"`
}

// JSONErrorHandler converts any error escaping a handler into a structured
// JSON response.
func JSONErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var ae *apperrors.Error
	if !errors.As(err, &ae) {
		if he, ok := err.(*echo.HTTPError); ok {
			ae = httpErrorToAppError(he)
		} else {
			ae = apperrors.New(apperrors.CodeInternal, "something went wrong, please try again later")
		}
	}

	status := ae.HTTPStatus()
	if status >= http.StatusInternalServerError {
		c.Logger().Error(err)
	}

	if jsonErr := c.JSON(status, errorBody{Success: false, Error: ae}); jsonErr != nil {
		c.Logger().Error(jsonErr)
	}
}

func httpErrorToAppError(he *echo.HTTPError) *apperrors.Error {
	message, _ := he.Message.(string)

	var code apperrors.Code
	switch he.Code {
	case http.StatusBadRequest:
		code = apperrors.CodeValidation
		if message == "" {
			message = "the request could not be processed"
		}
	case http.StatusUnauthorized, http.StatusForbidden:
		code = apperrors.CodeUnauthorized
		if message == "" {
			message = "authentication required"
		}
	case http.StatusNotFound:
		code = apperrors.CodeNotFound
		if message == "" {
			message = "resource not found"
		}
	default:
		code = apperrors.CodeInternal
		if message == "" {
			message = "something went wrong, please try again later"
		}
	}
	return apperrors.New(code, message)
}
