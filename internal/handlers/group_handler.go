package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/qzplatform/qz-service/internal/services"
	"github.com/qzplatform/qz-service/internal/utils"
)

type GroupHandler struct {
	BaseHandler
	groupService services.GroupService
}

func NewGroupHandler(groupService services.GroupService, logger utils.Logger) *GroupHandler {
	return &GroupHandler{
		BaseHandler:  NewBaseHandler(logger),
		groupService: groupService,
	}
}

// CreateGroup creates a group, provisioning accounts for unknown member emails
// @Summary Create group
// @Tags groups
// @Accept json
// @Produce json
// @Param group body services.CreateGroupRequest true "Group data"
// @Success 201 {object} services.GroupResult
// @Failure 400 {object} ErrorResponse
// @Router /groups [post]
func (h *GroupHandler) CreateGroup(c *gin.Context) {
	var req services.CreateGroupRequest
	if !h.bindJSON(c, &req) {
		return
	}
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	result, err := h.groupService.Create(c.Request.Context(), &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	h.LogRequest(c, "Group created", "group_id", result.Group.ID, "provisioned", result.Provisioned)
	c.JSON(http.StatusCreated, result)
}

// ListGroups
// @Summary List groups
// @Tags groups
// @Produce json
// @Success 200 {object} services.GroupListResponse
// @Router /groups [get]
func (h *GroupHandler) ListGroups(c *gin.Context) {
	var query services.ListQuery
	if !h.bindQuery(c, &query) {
		return
	}
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	groups, err := h.groupService.List(c.Request.Context(), userID, query)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, groups)
}

// GetGroup
// @Summary Get group
// @Tags groups
// @Produce json
// @Param id path string true "Group ID"
// @Success 200 {object} models.Group
// @Failure 404 {object} ErrorResponse
// @Router /groups/{id} [get]
func (h *GroupHandler) GetGroup(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	group, err := h.groupService.GetByID(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, group)
}

// DeleteGroup
// @Summary Delete group
// @Tags groups
// @Param id path string true "Group ID"
// @Success 204
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /groups/{id} [delete]
func (h *GroupHandler) DeleteGroup(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	if err := h.groupService.Delete(c.Request.Context(), c.Param("id"), userID); err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
