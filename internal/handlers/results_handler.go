package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/qzplatform/qz-service/internal/services"
	"github.com/qzplatform/qz-service/internal/utils"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type ResultsHandler struct {
	BaseHandler
	resultsService services.ResultsService
}

func NewResultsHandler(resultsService services.ResultsService, logger utils.Logger) *ResultsHandler {
	return &ResultsHandler{
		BaseHandler:    NewBaseHandler(logger),
		resultsService: resultsService,
	}
}

// ListResults returns one row per attempt
// @Summary List results
// @Tags results
// @Produce json
// @Param testId path string true "Test ID"
// @Success 200 {array} services.ResultRow
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /tests/{testId}/results [get]
func (h *ResultsHandler) ListResults(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	rows, err := h.resultsService.List(c.Request.Context(), c.Param("testId"), userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

// ExportResults streams the results workbook
// @Summary Export results
// @Tags results
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param testId path string true "Test ID"
// @Success 200 {file} file
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /tests/{testId}/results/export [get]
func (h *ResultsHandler) ExportResults(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	data, filename, err := h.resultsService.ExportXLSX(c.Request.Context(), c.Param("testId"), userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, xlsxContentType, data)
}
