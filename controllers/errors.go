package controllers

import (
	"context"
	"errors"
	"net/http"

	"github.com/aquadoks/sales-backend/services"
	"github.com/aquadoks/sales-backend/utils"
	"github.com/gin-gonic/gin"
)

var statusByCode = map[services.ErrorCode]int{
	services.CodeUnknownProduct:      http.StatusNotFound,
	services.CodeNotFound:            http.StatusNotFound,
	services.CodeInsufficientStock:   http.StatusConflict,
	services.CodeInvalidTransition:   http.StatusConflict,
	services.CodeRoutingViolation:    http.StatusUnprocessableEntity,
	services.CodeDimensionMismatch:   http.StatusUnprocessableEntity,
	services.CodeInvalidInput:        http.StatusBadRequest,
	services.CodeInvalidSignature:    http.StatusForbidden,
	services.CodeUpstreamUnavailable: http.StatusBadGateway,
}

func statusFor(code services.ErrorCode) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusBadRequest
}

// respondServiceError turns a service error into the structured failure body.
// Anything outside the taxonomy is logged and reported as an internal error.
func respondServiceError(c *gin.Context, err error) {
	if de, ok := services.AsDomainError(err); ok {
		utils.RespondFailure(c, statusFor(de.Code), de.Message, string(de.Code), de.Details)
		return
	}
	if errors.Is(err, context.Canceled) {
		utils.RespondFailure(c, 499, "request cancelled", "cancelled", nil)
		return
	}
	utils.ErrorLogger.WithField("path", c.Request.URL.Path).Errorf("internal error: %v", err)
	utils.RespondFailure(c, http.StatusInternalServerError, "internal error", "internal", nil)
}
