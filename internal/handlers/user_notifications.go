package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/sekolahku/backend/internal/services"
	"github.com/sekolahku/backend/pkg/response"
)

// UserNotificationHandler exposes fan-out assignment and read tracking over HTTP.
type UserNotificationHandler struct {
	service *services.UserNotificationService
}

// NewUserNotificationHandler constructs the fan-out handler.
func NewUserNotificationHandler(db *gorm.DB) (*UserNotificationHandler, error) {
	service, err := services.NewUserNotificationService(db)
	if err != nil {
		return nil, err
	}
	return &UserNotificationHandler{service: service}, nil
}

// Assign delivers one notification to an explicit list of users.
func (h *UserNotificationHandler) Assign(c *gin.Context) {
	var payload services.AssignInput
	if !bindAndValidate(c, &payload) {
		return
	}

	result, err := h.service.AssignToUsers(requestContext(c), payload)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, result)
}

// BulkAssign delivers every listed notification to every listed user.
func (h *UserNotificationHandler) BulkAssign(c *gin.Context) {
	var payload services.BulkAssignInput
	if !bindAndValidate(c, &payload) {
		return
	}

	result, err := h.service.BulkAssign(requestContext(c), payload)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, result)
}

// AssignByRole broadcasts one notification to every user holding any of the roles.
func (h *UserNotificationHandler) AssignByRole(c *gin.Context) {
	var payload services.AssignByRoleInput
	if !bindAndValidate(c, &payload) {
		return
	}

	result, err := h.service.AssignByRole(requestContext(c), payload)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, result)
}

// MarkRead marks the listed notifications read for one user.
func (h *UserNotificationHandler) MarkRead(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("userId"))

	var payload services.MarkReadInput
	if !bindAndValidate(c, &payload) {
		return
	}

	result, err := h.service.MarkRead(requestContext(c), userID, payload)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// MarkAllRead marks a user's entire feed read.
func (h *UserNotificationHandler) MarkAllRead(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("userId"))

	updated, err := h.service.MarkAllRead(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"marked_read_count": updated})
}

// Feed lists a user's notifications, newest first.
func (h *UserNotificationHandler) Feed(c *gin.Context) {
	input := services.ListFeedInput{
		UserID: strings.TrimSpace(c.Param("userId")),
		Type:   strings.TrimSpace(c.Query("type")),
		Limit:  parseIntQuery(c, "limit", 25),
		Offset: parseIntQuery(c, "offset", 0),
	}
	if unread := parseBoolQuery(c, "unread_only"); unread != nil {
		input.UnreadOnly = *unread
	}

	items, total, err := h.service.ListForUser(requestContext(c), input)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, items, &response.Meta{
		PerPage: input.Limit,
		Total:   int(total),
	})
}

// Stats aggregates a user's read state across their feed.
func (h *UserNotificationHandler) Stats(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("userId"))

	stats, err := h.service.StatsForUser(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, stats)
}

// Recipients lists who received a notification, optionally filtered by read state.
func (h *UserNotificationHandler) Recipients(c *gin.Context) {
	notificationID := strings.TrimSpace(c.Param("id"))

	recipients, err := h.service.Recipients(requestContext(c), notificationID, parseBoolQuery(c, "is_read"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, recipients)
}

// Remove withdraws one notification from one user's feed.
func (h *UserNotificationHandler) Remove(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("userId"))
	notificationID := strings.TrimSpace(c.Param("id"))

	if err := h.service.Remove(requestContext(c), userID, notificationID); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"removed": true})
}

// RemoveAll clears a user's feed entirely.
func (h *UserNotificationHandler) RemoveAll(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("userId"))

	removed, err := h.service.RemoveAllForUser(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"removed_count": removed})
}
