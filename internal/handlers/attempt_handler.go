package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/qzplatform/qz-service/internal/services"
	"github.com/qzplatform/qz-service/internal/utils"
)

type AttemptHandler struct {
	BaseHandler
	attemptService services.AttemptService
}

func NewAttemptHandler(attemptService services.AttemptService, logger utils.Logger) *AttemptHandler {
	return &AttemptHandler{
		BaseHandler:    NewBaseHandler(logger),
		attemptService: attemptService,
	}
}

// StartAttempt opens the caller's attempt, or returns the existing one
// @Summary Start attempt
// @Tags attempts
// @Produce json
// @Param testId path string true "Test ID"
// @Success 200 {object} models.TestAttempt
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse "test not open"
// @Router /tests/{testId}/attempts/start [post]
func (h *AttemptHandler) StartAttempt(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	attempt, err := h.attemptService.Start(c.Request.Context(), userID, c.Param("testId"))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, attempt)
}

// GetAttempt returns the caller's attempt for the test
// @Summary Get attempt
// @Tags attempts
// @Produce json
// @Param testId path string true "Test ID"
// @Success 200 {object} models.TestAttempt
// @Failure 404 {object} ErrorResponse
// @Router /tests/{testId}/attempts [get]
func (h *AttemptHandler) GetAttempt(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	attempt, err := h.attemptService.Get(c.Request.Context(), userID, c.Param("testId"))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, attempt)
}

// GetQuestion serves one question without correctness data
// @Summary Get attempt question
// @Tags attempts
// @Produce json
// @Param testId path string true "Test ID"
// @Param index path int true "Zero-based question index"
// @Success 200 {object} services.QuestionPage
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /tests/{testId}/attempts/questions/{index} [get]
func (h *AttemptHandler) GetQuestion(c *gin.Context) {
	index, ok := h.parseIndexParam(c, "index")
	if !ok {
		return
	}
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	page, err := h.attemptService.GetQuestion(c.Request.Context(), userID, c.Param("testId"), index)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// SaveProgress stores progress, or auto-submits when time is up
// @Summary Save attempt progress
// @Tags attempts
// @Accept json
// @Produce json
// @Param testId path string true "Test ID"
// @Param progress body services.ProgressRequest true "Progress"
// @Success 200 {object} services.AttemptResult
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /tests/{testId}/attempts/progress [put]
func (h *AttemptHandler) SaveProgress(c *gin.Context) {
	var req services.ProgressRequest
	if !h.bindJSON(c, &req) {
		return
	}
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	result, err := h.attemptService.SaveProgress(c.Request.Context(), userID, c.Param("testId"), &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// SubmitAttempt scores and closes the attempt
// @Summary Submit attempt
// @Tags attempts
// @Accept json
// @Produce json
// @Param testId path string true "Test ID"
// @Param answers body services.SubmitRequest true "Answers"
// @Success 200 {object} services.AttemptResult
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse "already submitted"
// @Router /tests/{testId}/attempts/submit [post]
func (h *AttemptHandler) SubmitAttempt(c *gin.Context) {
	var req services.SubmitRequest
	if !h.bindJSON(c, &req) {
		return
	}
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	testID := c.Param("testId")
	result, err := h.attemptService.Submit(c.Request.Context(), userID, testID, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	h.LogRequest(c, "Attempt submitted", "test_id", testID, "auto_submitted", result.AutoSubmitted)
	c.JSON(http.StatusOK, result)
}
