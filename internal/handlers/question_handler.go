package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/qzplatform/qz-service/internal/services"
	"github.com/qzplatform/qz-service/internal/utils"
)

type QuestionHandler struct {
	BaseHandler
	questionService services.QuestionService
}

func NewQuestionHandler(questionService services.QuestionService, logger utils.Logger) *QuestionHandler {
	return &QuestionHandler{
		BaseHandler:     NewBaseHandler(logger),
		questionService: questionService,
	}
}

// CreateQuestion creates a standalone question
// @Summary Create question
// @Tags questions
// @Accept json
// @Produce json
// @Param question body services.QuestionRequest true "Question data"
// @Success 201 {object} models.Question
// @Failure 400 {object} ErrorResponse
// @Router /questions [post]
func (h *QuestionHandler) CreateQuestion(c *gin.Context) {
	var req services.QuestionRequest
	if !h.bindJSON(c, &req) {
		return
	}
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	question, err := h.questionService.Create(c.Request.Context(), &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, question)
}

// ListQuestions lists the caller's questions, optionally by category
// @Summary List questions
// @Tags questions
// @Produce json
// @Param category query string false "Category"
// @Success 200 {object} services.QuestionListResponse
// @Router /questions [get]
func (h *QuestionHandler) ListQuestions(c *gin.Context) {
	var query services.ListQuery
	if !h.bindQuery(c, &query) {
		return
	}
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	questions, err := h.questionService.List(c.Request.Context(), userID, query)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, questions)
}

// GetQuestion
// @Summary Get question
// @Tags questions
// @Produce json
// @Param id path string true "Question ID"
// @Success 200 {object} models.Question
// @Failure 404 {object} ErrorResponse
// @Router /questions/{id} [get]
func (h *QuestionHandler) GetQuestion(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	question, err := h.questionService.GetByID(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, question)
}

// UpdateQuestion replaces the question body; links are kept
// @Summary Update question
// @Tags questions
// @Accept json
// @Produce json
// @Param id path string true "Question ID"
// @Param question body services.QuestionRequest true "Question data"
// @Success 200 {object} models.Question
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /questions/{id} [put]
func (h *QuestionHandler) UpdateQuestion(c *gin.Context) {
	var req services.QuestionRequest
	if !h.bindJSON(c, &req) {
		return
	}
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	question, err := h.questionService.Update(c.Request.Context(), c.Param("id"), &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, question)
}

// DeleteQuestion deletes a question and removes it from every linked test
// @Summary Delete question
// @Tags questions
// @Param id path string true "Question ID"
// @Success 204
// @Failure 404 {object} ErrorResponse
// @Router /questions/{id} [delete]
func (h *QuestionHandler) DeleteQuestion(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	if err := h.questionService.Delete(c.Request.Context(), c.Param("id"), userID); err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// CreateTestQuestion creates a question and links it to the test
// @Summary Create question in test
// @Tags questions
// @Accept json
// @Produce json
// @Param testId path string true "Test ID"
// @Param question body services.QuestionRequest true "Question data"
// @Success 201 {object} models.Question
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /tests/{testId}/questions [post]
func (h *QuestionHandler) CreateTestQuestion(c *gin.Context) {
	var req services.QuestionRequest
	if !h.bindJSON(c, &req) {
		return
	}
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	question, err := h.questionService.CreateForTest(c.Request.Context(), c.Param("testId"), &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, question)
}

// LinkQuestion
// @Summary Link question to test
// @Tags questions
// @Produce json
// @Param testId path string true "Test ID"
// @Param questionId path string true "Question ID"
// @Success 200 {object} models.Test
// @Failure 400 {object} ErrorResponse "already linked"
// @Failure 404 {object} ErrorResponse
// @Router /tests/{testId}/questions/{questionId}/link [post]
func (h *QuestionHandler) LinkQuestion(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	test, err := h.questionService.Link(c.Request.Context(), c.Param("testId"), c.Param("questionId"), userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, test)
}

// UnlinkQuestion
// @Summary Unlink question from test
// @Tags questions
// @Produce json
// @Param testId path string true "Test ID"
// @Param questionId path string true "Question ID"
// @Success 200 {object} models.Test
// @Failure 400 {object} ErrorResponse "not linked"
// @Failure 404 {object} ErrorResponse
// @Router /tests/{testId}/questions/{questionId}/link [delete]
func (h *QuestionHandler) UnlinkQuestion(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	test, err := h.questionService.Unlink(c.Request.Context(), c.Param("testId"), c.Param("questionId"), userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, test)
}
