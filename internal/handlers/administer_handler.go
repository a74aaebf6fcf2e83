package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/qzplatform/qz-service/internal/services"
	"github.com/qzplatform/qz-service/internal/utils"
)

type AdministerHandler struct {
	BaseHandler
	administerService services.AdministerService
}

func NewAdministerHandler(administerService services.AdministerService, logger utils.Logger) *AdministerHandler {
	return &AdministerHandler{
		BaseHandler:       NewBaseHandler(logger),
		administerService: administerService,
	}
}

// Administer merges administration settings and resolves the assignment
// @Summary Administer test
// @Description Merges scheduling, time, configuration, proctoring and assignment settings. A link assignment returns the sharable link.
// @Tags administer
// @Accept json
// @Produce json
// @Param testId path string true "Test ID"
// @Param settings body services.AdministerRequest true "Partial settings"
// @Success 200 {object} services.AdministerResult
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /tests/{testId}/administer [post]
func (h *AdministerHandler) Administer(c *gin.Context) {
	var req services.AdministerRequest
	if !h.bindJSON(c, &req) {
		return
	}
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	testID := c.Param("testId")
	h.LogRequest(c, "Administering test", "test_id", testID)

	result, err := h.administerService.Administer(c.Request.Context(), testID, &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	// Only the link method answers with the wrapped shape
	if result.Link != nil {
		c.JSON(http.StatusOK, result)
		return
	}
	c.JSON(http.StatusOK, result.Test)
}

// GetSettings returns the administration settings with a fresh status
// @Summary Get administration settings
// @Tags administer
// @Produce json
// @Param testId path string true "Test ID"
// @Success 200 {object} services.AdministerSettings
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /tests/{testId}/administer [get]
func (h *AdministerHandler) GetSettings(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	settings, err := h.administerService.GetSettings(c.Request.Context(), c.Param("testId"), userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

// PatchSettings merges settings without resolving the assignment
// @Summary Update administration settings
// @Tags administer
// @Accept json
// @Produce json
// @Param testId path string true "Test ID"
// @Param settings body services.AdministerRequest true "Partial settings"
// @Success 200 {object} models.Test
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /tests/{testId}/administer [patch]
func (h *AdministerHandler) PatchSettings(c *gin.Context) {
	var req services.AdministerRequest
	if !h.bindJSON(c, &req) {
		return
	}
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	test, err := h.administerService.PatchSettings(c.Request.Context(), c.Param("testId"), &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, test)
}
