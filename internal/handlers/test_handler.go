package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/qzplatform/qz-service/internal/services"
	"github.com/qzplatform/qz-service/internal/utils"
)

type TestHandler struct {
	BaseHandler
	testService services.TestService
}

func NewTestHandler(testService services.TestService, logger utils.Logger) *TestHandler {
	return &TestHandler{
		BaseHandler: NewBaseHandler(logger),
		testService: testService,
	}
}

// CreateTest creates a test owned by the caller
// @Summary Create test
// @Tags tests
// @Accept json
// @Produce json
// @Param test body services.CreateTestRequest true "Test data"
// @Success 201 {object} models.Test
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Router /tests [post]
func (h *TestHandler) CreateTest(c *gin.Context) {
	var req services.CreateTestRequest
	if !h.bindJSON(c, &req) {
		return
	}
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	test, err := h.testService.Create(c.Request.Context(), &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, test)
}

// ListTests lists the caller's tests
// @Summary List tests
// @Tags tests
// @Produce json
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} services.TestListResponse
// @Router /tests [get]
func (h *TestHandler) ListTests(c *gin.Context) {
	var query services.ListQuery
	if !h.bindQuery(c, &query) {
		return
	}
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	tests, err := h.testService.List(c.Request.Context(), userID, query)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, tests)
}

// ListAvailable lists the tests the caller may take now
// @Summary List available tests
// @Tags tests
// @Produce json
// @Success 200 {array} models.Test
// @Router /tests/available [get]
func (h *TestHandler) ListAvailable(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	tests, err := h.testService.ListAvailable(c.Request.Context(), userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, tests)
}

// GetTest returns a test with a freshly derived status
// @Summary Get test
// @Tags tests
// @Produce json
// @Param testId path string true "Test ID"
// @Success 200 {object} models.Test
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /tests/{testId} [get]
func (h *TestHandler) GetTest(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	test, err := h.testService.GetByID(c.Request.Context(), c.Param("testId"), userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, test)
}

// UpdateTest updates the descriptive fields
// @Summary Update test
// @Tags tests
// @Accept json
// @Produce json
// @Param testId path string true "Test ID"
// @Param test body services.UpdateTestRequest true "Fields to change"
// @Success 200 {object} models.Test
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /tests/{testId} [put]
func (h *TestHandler) UpdateTest(c *gin.Context) {
	var req services.UpdateTestRequest
	if !h.bindJSON(c, &req) {
		return
	}
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	test, err := h.testService.Update(c.Request.Context(), c.Param("testId"), &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, test)
}

// DeleteTest deletes a test and unlinks its questions
// @Summary Delete test
// @Tags tests
// @Param testId path string true "Test ID"
// @Success 204
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /tests/{testId} [delete]
func (h *TestHandler) DeleteTest(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	testID := c.Param("testId")
	if err := h.testService.Delete(c.Request.Context(), testID, userID); err != nil {
		h.handleServiceError(c, err)
		return
	}
	h.LogRequest(c, "Test deleted", "test_id", testID)
	c.Status(http.StatusNoContent)
}

// ListTestQuestions returns the linked questions in test order
// @Summary List test questions
// @Tags tests
// @Produce json
// @Param testId path string true "Test ID"
// @Success 200 {array} models.Question
// @Router /tests/{testId}/questions [get]
func (h *TestHandler) ListTestQuestions(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	questions, err := h.testService.ListQuestions(c.Request.Context(), c.Param("testId"), userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, questions)
}
