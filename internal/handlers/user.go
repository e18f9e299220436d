package handlers

import (
	"net/http"

	"github.com/ArowuTest/lottery-odds/internal/auth"
	"github.com/ArowuTest/lottery-odds/internal/models"
	"github.com/ArowuTest/lottery-odds/internal/store"
	"github.com/gin-gonic/gin"
)

// UserHandler manages admin accounts.
type UserHandler struct {
	users store.UserStore
}

func NewUserHandler(users store.UserStore) *UserHandler {
	return &UserHandler{users: users}
}

// CreateUser creates a new admin user.
func (h *UserHandler) CreateUser(c *gin.Context) {
	var input struct {
		Username string               `json:"username" binding:"required"`
		Password string               `json:"password" binding:"required,min=6"`
		Role     models.AdminUserRole `json:"role" binding:"required"`
		Status   models.UserStatus    `json:"status,omitempty"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payload: " + err.Error()})
		return
	}

	// Validate role
	switch input.Role {
	case models.RoleSuperAdmin, models.RoleAdmin, models.RoleViewer:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid role"})
		return
	}

	newUser := models.AdminUser{
		Username: input.Username,
		Role:     input.Role,
		Status:   models.StatusActive,
	}
	if input.Status != "" {
		switch input.Status {
		case models.StatusActive, models.StatusInactive, models.StatusLocked:
			newUser.Status = input.Status
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status"})
			return
		}
	}

	hashed, err := auth.HashPassword(input.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to hash password"})
		return
	}
	newUser.PasswordHash = hashed

	if err := h.users.CreateUser(c.Request.Context(), &newUser); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user: " + err.Error()})
		return
	}
	c.JSON(http.StatusCreated, newUser)
}

// ListUsers returns all admin users.
func (h *UserHandler) ListUsers(c *gin.Context) {
	users, err := h.users.ListUsers(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list users: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, users)
}
