package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/qzplatform/qz-service/internal/services"
	"github.com/qzplatform/qz-service/internal/validator"
)

// handleServiceError maps service errors onto status codes. Unexpected errors
// are logged and answered with a generic 500.
func (h *BaseHandler) handleServiceError(c *gin.Context, err error) {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Validation failed",
			Details: validationErrors,
		})
		return
	}

	var permissionError *services.PermissionError
	if errors.As(err, &permissionError) {
		c.JSON(http.StatusForbidden, ErrorResponse{
			Message: "Access denied",
			Details: map[string]interface{}{
				"resource": permissionError.Resource,
				"action":   permissionError.Action,
				"reason":   permissionError.Reason,
			},
		})
		return
	}

	var ruleError *services.BusinessRuleError
	if errors.As(err, &ruleError) && !services.IsInvalidState(err) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: ruleError.Message,
			Details: map[string]interface{}{"rule": ruleError.Rule},
		})
		return
	}

	switch {
	case services.IsNotFound(err):
		c.JSON(http.StatusNotFound, ErrorResponse{Message: err.Error()})
	case errors.Is(err, services.ErrInvalidLinkToken):
		c.JSON(http.StatusUnauthorized, ErrorResponse{Message: services.ErrInvalidLinkToken.Error()})
	case errors.Is(err, services.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, ErrorResponse{Message: "Unauthorized access"})
	case errors.Is(err, services.ErrForbidden):
		c.JSON(http.StatusForbidden, ErrorResponse{Message: "Forbidden - insufficient permissions"})
	case services.IsInvalidInput(err):
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: err.Error()})
	case services.IsInvalidState(err):
		c.JSON(http.StatusConflict, ErrorResponse{Message: err.Error()})
	case errors.Is(err, services.ErrDependencyFailure):
		h.LogError(c, err, "Dependency failure")
		c.JSON(http.StatusBadGateway, ErrorResponse{Message: "Upstream dependency unavailable"})
	default:
		h.LogError(c, err, "Unexpected service error")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Message: "Internal server error"})
	}
}
