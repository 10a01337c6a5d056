package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yeremiapane/kitchen-display/kds"
	"github.com/yeremiapane/kitchen-display/services"
	"github.com/yeremiapane/kitchen-display/utils"
)

type CustomError struct {
	Message string
}

func (e *CustomError) Error() string {
	return e.Message
}

var (
	ErrNoPermission = &CustomError{"You do not have permission"}
	ErrInvalidID    = &CustomError{"invalid order id"}
)

// statusFor memetakan error domain ke kode HTTP.
func statusFor(err error) int {
	var cmdErr *kds.CommandError
	switch {
	case errors.As(err, &cmdErr):
		return http.StatusBadGateway
	case errors.Is(err, kds.ErrOrderNotFound), errors.Is(err, services.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, kds.ErrIllegalTransition),
		errors.Is(err, kds.ErrTerminalOrder),
		errors.Is(err, kds.ErrCommandInFlight),
		errors.Is(err, services.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, kds.ErrInvalidPriority),
		errors.Is(err, kds.ErrInvalidFilter),
		errors.Is(err, services.ErrInvalidStatus),
		errors.Is(err, services.ErrInvalidPriority),
		errors.Is(err, services.ErrInvalidOrder):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func respondDomainError(c *gin.Context, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		utils.ErrorLogger.WithError(err).WithField("path", c.FullPath()).Error("request failed")
	}
	utils.RespondError(c, code, err)
}
