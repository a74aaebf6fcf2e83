package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/qzplatform/qz-service/internal/models"
	"github.com/qzplatform/qz-service/internal/services"
	"github.com/qzplatform/qz-service/internal/utils"
)

type LinkHandler struct {
	BaseHandler
	testService services.TestService
}

func NewLinkHandler(testService services.TestService, logger utils.Logger) *LinkHandler {
	return &LinkHandler{
		BaseHandler: NewBaseHandler(logger),
		testService: testService,
	}
}

type resolveLinkQuery struct {
	Token string `form:"token" binding:"required"`
}

// ResolveLink verifies a sharable token and returns its snapshot. Restricted
// links need an authenticated caller; public ones do not.
// @Summary Resolve sharable link
// @Tags links
// @Produce json
// @Param token query string true "Link token"
// @Success 200 {object} services.LinkResolution
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /links/resolve [get]
func (h *LinkHandler) ResolveLink(c *gin.Context) {
	var query resolveLinkQuery
	if !h.bindQuery(c, &query) {
		return
	}

	resolution, err := h.testService.ResolveLink(c.Request.Context(), query.Token)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	if resolution.Claims.SharingType != models.LinkPublic {
		if _, err := GetUserIDFromContext(c); err != nil {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Message: "Sign in to open this link"})
			return
		}
	}
	c.JSON(http.StatusOK, resolution)
}
