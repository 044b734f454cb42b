package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/sekolahku/backend/internal/services"
	appErrors "github.com/sekolahku/backend/pkg/errors"
	"github.com/sekolahku/backend/pkg/response"
)

// NotificationHandler exposes the notification catalog over HTTP.
type NotificationHandler struct {
	service *services.NotificationService
}

// NewNotificationHandler constructs a catalog handler.
func NewNotificationHandler(db *gorm.DB) (*NotificationHandler, error) {
	service, err := services.NewNotificationService(db)
	if err != nil {
		return nil, err
	}
	return &NotificationHandler{service: service}, nil
}

// Create persists a single catalog entry.
func (h *NotificationHandler) Create(c *gin.Context) {
	var payload services.CreateNotificationInput
	if !bindAndValidate(c, &payload) {
		return
	}

	notification, err := h.service.Create(requestContext(c), payload)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, notification)
}

// BulkCreate persists a batch of catalog entries, all or nothing.
func (h *NotificationHandler) BulkCreate(c *gin.Context) {
	var payload struct {
		Notifications []services.CreateNotificationInput `json:"notifications" validate:"required,min=1,dive"`
	}
	if !bindAndValidate(c, &payload) {
		return
	}

	created, err := h.service.BulkCreate(requestContext(c), payload.Notifications)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{
		"notifications": created,
		"created_count": len(created),
	})
}

// List browses the catalog with type, search and date-range filters.
func (h *NotificationHandler) List(c *gin.Context) {
	input := services.ListCatalogInput{
		Type:   strings.TrimSpace(c.Query("type")),
		Search: strings.TrimSpace(c.Query("search")),
		Limit:  parseIntQuery(c, "limit", 25),
		Offset: parseIntQuery(c, "offset", 0),
	}

	var err error
	if input.StartDate, err = parseTimeQuery(c, "start_date"); err != nil {
		response.Error(c, err)
		return
	}
	if input.EndDate, err = parseTimeQuery(c, "end_date"); err != nil {
		response.Error(c, err)
		return
	}

	notifications, total, err := h.service.List(requestContext(c), input)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, notifications, &response.Meta{
		PerPage: input.Limit,
		Total:   int(total),
	})
}

// Get returns a single catalog entry.
func (h *NotificationHandler) Get(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	notification, err := h.service.Get(requestContext(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, notification)
}

// Update applies partial changes to a catalog entry.
func (h *NotificationHandler) Update(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	var payload services.UpdateNotificationInput
	if !bindAndValidate(c, &payload) {
		return
	}

	notification, err := h.service.Update(requestContext(c), id, payload)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, notification)
}

// Delete removes a catalog entry; the schema cascades to delivery rows.
func (h *NotificationHandler) Delete(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	if err := h.service.Delete(requestContext(c), id); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// Stats summarises the catalog.
func (h *NotificationHandler) Stats(c *gin.Context) {
	stats, err := h.service.Stats(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, stats)
}

func parseTimeQuery(c *gin.Context, key string) (*time.Time, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		parsed, err = time.Parse("2006-01-02", value)
	}
	if err != nil {
		return nil, appErrors.NewBadRequest("invalid " + key + ": expected RFC3339 or YYYY-MM-DD")
	}
	return &parsed, nil
}
