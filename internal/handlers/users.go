package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/sekolahku/backend/internal/services"
	"github.com/sekolahku/backend/pkg/response"
)

// UserHandler exposes the school account directory over HTTP.
type UserHandler struct {
	service *services.UserService
}

// NewUserHandler constructs a directory handler.
func NewUserHandler(db *gorm.DB) (*UserHandler, error) {
	service, err := services.NewUserService(db)
	if err != nil {
		return nil, err
	}
	return &UserHandler{service: service}, nil
}

// Create registers a new user account.
func (h *UserHandler) Create(c *gin.Context) {
	var payload services.CreateUserInput
	if !bindAndValidate(c, &payload) {
		return
	}

	user, err := h.service.Create(requestContext(c), payload)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, user)
}

// Get returns a single user by ID.
func (h *UserHandler) Get(c *gin.Context) {
	id := strings.TrimSpace(c.Param("userId"))

	user, err := h.service.Get(requestContext(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, user)
}

// List returns directory entries with role and grade filters.
func (h *UserHandler) List(c *gin.Context) {
	opts := services.ListUsersOptions{
		Role:     strings.TrimSpace(c.Query("role")),
		Grade:    strings.TrimSpace(c.Query("grade")),
		Page:     parseIntQuery(c, "page", 1),
		PageSize: parseIntQuery(c, "page_size", 25),
	}

	users, total, err := h.service.List(requestContext(c), opts)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, users, &response.Meta{
		Page:    opts.Page,
		PerPage: opts.PageSize,
		Total:   int(total),
	})
}

// Update applies partial changes to a user account.
func (h *UserHandler) Update(c *gin.Context) {
	id := strings.TrimSpace(c.Param("userId"))

	var payload services.UpdateUserInput
	if !bindAndValidate(c, &payload) {
		return
	}

	user, err := h.service.Update(requestContext(c), id, payload)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, user)
}

// Delete removes a user account and, through the schema, their feed rows.
func (h *UserHandler) Delete(c *gin.Context) {
	id := strings.TrimSpace(c.Param("userId"))

	if err := h.service.Delete(requestContext(c), id); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}
