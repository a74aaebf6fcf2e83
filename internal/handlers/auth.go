package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/qzplatform/qz-service/internal/models"
	"github.com/qzplatform/qz-service/internal/repositories"
)

// AccessClaims is the bearer token issued by the platform's auth service
type AccessClaims struct {
	UserID string          `json:"user_id"`
	Role   models.UserRole `json:"role"`
	Email  string          `json:"email"`
	jwt.RegisteredClaims
}

// JWTAuthMiddleware authenticates HS256 bearer tokens
type JWTAuthMiddleware struct {
	secret   []byte
	userRepo repositories.UserRepository
}

func NewJWTAuthMiddleware(secret string, userRepo repositories.UserRepository) *JWTAuthMiddleware {
	return &JWTAuthMiddleware{secret: []byte(secret), userRepo: userRepo}
}

// AuthMiddleware rejects requests without a valid bearer token
func (am *JWTAuthMiddleware) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := am.authenticate(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
				Message: "Unauthorized",
				Details: err.Error(),
			})
			return
		}
		setUser(c, user)
		c.Next()
	}
}

// OptionalAuthMiddleware sets the user when a valid token is present and
// continues anonymously otherwise
func (am *JWTAuthMiddleware) OptionalAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if user, err := am.authenticate(c); err == nil {
			setUser(c, user)
		}
		c.Next()
	}
}

// RequireRoleMiddleware lets admins through in addition to the listed roles
func (am *JWTAuthMiddleware) RequireRoleMiddleware(requiredRoles ...models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, err := GetUserRoleFromContext(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{Message: "Forbidden", Details: err.Error()})
			return
		}

		for _, required := range requiredRoles {
			if role == required || role == models.RoleAdmin {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{
			Message: "Forbidden",
			Details: fmt.Sprintf("insufficient permissions, required role: %v", requiredRoles),
		})
	}
}

func (am *JWTAuthMiddleware) authenticate(c *gin.Context) (*models.User, error) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return nil, errors.New("authorization header missing")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return nil, errors.New("invalid authorization header format")
	}

	claims := &AccessClaims{}
	_, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return am.secret, nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if claims.UserID == "" {
		return nil, errors.New("invalid user ID in token")
	}

	return am.resolveUser(c.Request.Context(), claims)
}

// resolveUser prefers the stored account; a token for a user this service has
// never seen is trusted as issued
func (am *JWTAuthMiddleware) resolveUser(ctx context.Context, claims *AccessClaims) (*models.User, error) {
	if am.userRepo != nil {
		user, err := am.userRepo.GetByID(ctx, nil, claims.UserID)
		switch {
		case err == nil:
			if !user.IsActive {
				return nil, errors.New("account is disabled")
			}
			return user, nil
		case !repositories.IsNotFoundError(err):
			return nil, fmt.Errorf("failed to load user: %w", err)
		}
	}

	role := claims.Role
	if role == "" {
		role = models.RoleTestTaker
	}
	return &models.User{ID: claims.UserID, Email: claims.Email, Role: role, IsActive: true}, nil
}

func setUser(c *gin.Context, user *models.User) {
	c.Set("user_id", user.ID)
	c.Set("user", user)
	c.Set("user_role", user.Role)
	c.Set("user_email", user.Email)
}

// GetUserIDFromContext extracts user ID from Gin context
func GetUserIDFromContext(c *gin.Context) (string, error) {
	userID, exists := c.Get("user_id")
	if !exists {
		return "", errors.New("user ID not found in context")
	}
	id, ok := userID.(string)
	if !ok || id == "" {
		return "", errors.New("invalid user ID type in context")
	}
	return id, nil
}

// GetUserRoleFromContext extracts user role from Gin context
func GetUserRoleFromContext(c *gin.Context) (models.UserRole, error) {
	userRole, exists := c.Get("user_role")
	if !exists {
		return "", errors.New("user role not found in context")
	}
	role, ok := userRole.(models.UserRole)
	if !ok {
		return "", errors.New("invalid user role type in context")
	}
	return role, nil
}
