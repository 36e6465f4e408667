package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"epos/pkg/apperr"
)

const internalMessage = "Greška na serveru"

// Error renders err as a JSON error body. Business errors keep their message
// and status; anything else is logged and answered with a generic 500.
func Error(c echo.Context, err error, logger logrus.FieldLogger) error {
	if appErr, ok := apperr.As(err); ok {
		return c.JSON(apperr.HTTPStatus(appErr.Code), map[string]string{"error": appErr.Message})
	}

	logger.WithError(err).WithFields(logrus.Fields{
		"method": c.Request().Method,
		"uri":    c.Request().RequestURI,
	}).Error("Request failed")
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": internalMessage})
}
