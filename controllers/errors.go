package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yeremiapane/cafe-orders/services"
	"github.com/yeremiapane/cafe-orders/utils"
)

const genericErrorMessage = "An unexpected error occurred. Please try again later."

// respondServiceError maps service errors to status codes. Internal and
// gateway details stay in the logs.
func respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrValidation),
		errors.Is(err, services.ErrItemUnavailable),
		errors.Is(err, services.ErrExtraUnavailable):
		utils.RespondError(c, http.StatusBadRequest, err)
	case errors.Is(err, services.ErrNotFound):
		utils.RespondError(c, http.StatusNotFound, err)
	case errors.Is(err, services.ErrInvalidTransition),
		errors.Is(err, services.ErrTerminalState),
		errors.Is(err, services.ErrConcurrentModification):
		utils.RespondError(c, http.StatusConflict, err)
	default:
		c.Error(err)
		utils.ErrorLogger.WithError(err).WithField("path", c.FullPath()).Error("Request failed")
		utils.RespondErrorMessage(c, http.StatusInternalServerError, genericErrorMessage)
	}
}
