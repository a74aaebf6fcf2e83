package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/qzplatform/qz-service/internal/models"
	"github.com/qzplatform/qz-service/internal/repositories"
	"github.com/qzplatform/qz-service/internal/services"
	"github.com/qzplatform/qz-service/internal/utils"
)

type HandlerManager struct {
	administerHandler *AdministerHandler
	testHandler       *TestHandler
	questionHandler   *QuestionHandler
	groupHandler      *GroupHandler
	attemptHandler    *AttemptHandler
	linkHandler       *LinkHandler
	resultsHandler    *ResultsHandler
	authMiddleware    *JWTAuthMiddleware
	serviceManager    services.ServiceManager
}

func NewHandlerManager(
	serviceManager services.ServiceManager,
	logger utils.Logger,
	jwtSecret string,
	userRepo repositories.UserRepository,
) *HandlerManager {
	return &HandlerManager{
		administerHandler: NewAdministerHandler(serviceManager.Administer(), logger),
		testHandler:       NewTestHandler(serviceManager.Test(), logger),
		questionHandler:   NewQuestionHandler(serviceManager.Question(), logger),
		groupHandler:      NewGroupHandler(serviceManager.Group(), logger),
		attemptHandler:    NewAttemptHandler(serviceManager.Attempt(), logger),
		linkHandler:       NewLinkHandler(serviceManager.Test(), logger),
		resultsHandler:    NewResultsHandler(serviceManager.Results(), logger),
		authMiddleware:    NewJWTAuthMiddleware(jwtSecret, userRepo),
		serviceManager:    serviceManager,
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	creatorOnly := hm.authMiddleware.RequireRoleMiddleware(models.RoleTestCreator)

	// Link resolution works for anonymous callers on public links
	links := router.Group("/api/v1/links")
	links.Use(hm.authMiddleware.OptionalAuthMiddleware())
	{
		links.GET("/resolve", hm.linkHandler.ResolveLink)
	}

	v1 := router.Group("/api/v1")
	v1.Use(hm.authMiddleware.AuthMiddleware())
	{
		tests := v1.Group("/tests")
		{
			tests.GET("/available", hm.testHandler.ListAvailable)

			tests.POST("", creatorOnly, hm.testHandler.CreateTest)
			tests.GET("", creatorOnly, hm.testHandler.ListTests)
			tests.GET("/:testId", creatorOnly, hm.testHandler.GetTest)
			tests.PUT("/:testId", creatorOnly, hm.testHandler.UpdateTest)
			tests.DELETE("/:testId", creatorOnly, hm.testHandler.DeleteTest)

			// Administration
			tests.POST("/:testId/administer", creatorOnly, hm.administerHandler.Administer)
			tests.GET("/:testId/administer", creatorOnly, hm.administerHandler.GetSettings)
			tests.PATCH("/:testId/administer", creatorOnly, hm.administerHandler.PatchSettings)

			// Test questions
			tests.GET("/:testId/questions", creatorOnly, hm.testHandler.ListTestQuestions)
			tests.POST("/:testId/questions", creatorOnly, hm.questionHandler.CreateTestQuestion)
			tests.POST("/:testId/questions/:questionId/link", creatorOnly, hm.questionHandler.LinkQuestion)
			tests.DELETE("/:testId/questions/:questionId/link", creatorOnly, hm.questionHandler.UnlinkQuestion)

			// Results
			tests.GET("/:testId/results", creatorOnly, hm.resultsHandler.ListResults)
			tests.GET("/:testId/results/export", creatorOnly, hm.resultsHandler.ExportResults)

			// Attempts - any authenticated user
			tests.POST("/:testId/attempts/start", hm.attemptHandler.StartAttempt)
			tests.GET("/:testId/attempts", hm.attemptHandler.GetAttempt)
			tests.GET("/:testId/attempts/questions/:index", hm.attemptHandler.GetQuestion)
			tests.PUT("/:testId/attempts/progress", hm.attemptHandler.SaveProgress)
			tests.POST("/:testId/attempts/submit", hm.attemptHandler.SubmitAttempt)
		}

		questions := v1.Group("/questions")
		questions.Use(creatorOnly)
		{
			questions.POST("", hm.questionHandler.CreateQuestion)
			questions.GET("", hm.questionHandler.ListQuestions)
			questions.GET("/:id", hm.questionHandler.GetQuestion)
			questions.PUT("/:id", hm.questionHandler.UpdateQuestion)
			questions.DELETE("/:id", hm.questionHandler.DeleteQuestion)
		}

		groups := v1.Group("/groups")
		groups.Use(creatorOnly)
		{
			groups.POST("", hm.groupHandler.CreateGroup)
			groups.GET("", hm.groupHandler.ListGroups)
			groups.GET("/:id", hm.groupHandler.GetGroup)
			groups.DELETE("/:id", hm.groupHandler.DeleteGroup)
		}
	}

	// Health check endpoint
	router.GET("/health", hm.health)
}

func (hm *HandlerManager) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	if err := hm.serviceManager.HealthCheck(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "unhealthy",
			"service": "qz-service",
			"error":   err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "qz-service",
	})
}
