package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"gorm.io/gorm"

	"github.com/sekolahku/backend/internal/models"
	apperrors "github.com/sekolahku/backend/pkg/errors"
	"github.com/sekolahku/backend/pkg/validator"
)

// maxBulkCreate caps how many notifications a single bulk-create call may carry.
const maxBulkCreate = 50

// ErrNotificationNotFound indicates the requested notification does not exist.
var ErrNotificationNotFound = apperrors.New(apperrors.ErrNotFound.Code, "Notification not found", http.StatusNotFound)

// CreateNotificationInput defines attributes required to persist a catalog entry.
type CreateNotificationInput struct {
	Title       string     `json:"title" validate:"required,min=3,max=255"`
	Description string     `json:"description"`
	Type        string     `json:"type" validate:"required"`
	Nominal     *float64   `json:"nominal" validate:"omitempty,gte=0"`
	Date        *time.Time `json:"date"`
}

// UpdateNotificationInput enumerates mutable catalog fields; nil means unchanged.
type UpdateNotificationInput struct {
	Title       *string    `json:"title" validate:"omitempty,min=3,max=255"`
	Description *string    `json:"description"`
	Type        *string    `json:"type"`
	Nominal     *float64   `json:"nominal" validate:"omitempty,gte=0"`
	Date        *time.Time `json:"date"`
}

// ListCatalogInput defines filters for browsing the catalog.
type ListCatalogInput struct {
	Type      string
	Search    string
	StartDate *time.Time
	EndDate   *time.Time
	Limit     int
	Offset    int
}

// CatalogStats summarises the notification catalog.
type CatalogStats struct {
	Total      int64                            `json:"total_notifications"`
	ByType     map[models.NotificationType]int64 `json:"by_type"`
	Latest     *models.Notification             `json:"latest_notification,omitempty"`
	TodayCount int64                            `json:"today_count"`
}

// NotificationService manages the notification catalog: content only, no
// per-recipient state.
type NotificationService struct {
	db *gorm.DB
}

// NewNotificationService constructs a NotificationService.
func NewNotificationService(db *gorm.DB) (*NotificationService, error) {
	if db == nil {
		return nil, errors.New("notification service: db is required")
	}
	return &NotificationService{db: db}, nil
}

// Create registers a new catalog entry.
func (s *NotificationService) Create(ctx context.Context, input CreateNotificationInput) (*models.Notification, error) {
	ctx = ensureContext(ctx)

	notification, err := buildNotification(input)
	if err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Create(notification).Error; err != nil {
		return nil, fmt.Errorf("notification service: create notification: %w", err)
	}
	return notification, nil
}

// BulkCreate persists up to maxBulkCreate entries atomically; any invalid
// entry rejects the whole batch before the first write.
func (s *NotificationService) BulkCreate(ctx context.Context, inputs []CreateNotificationInput) ([]models.Notification, error) {
	ctx = ensureContext(ctx)

	if len(inputs) == 0 {
		return nil, apperrors.NewBadRequest("at least one notification must be provided")
	}
	if len(inputs) > maxBulkCreate {
		return nil, apperrors.NewBadRequest(fmt.Sprintf("cannot create more than %d notifications at once", maxBulkCreate))
	}

	notifications := make([]models.Notification, 0, len(inputs))
	for i, input := range inputs {
		notification, err := buildNotification(input)
		if err != nil {
			return nil, apperrors.NewBadRequest(fmt.Sprintf("notification %d: %s", i, apperrors.FromError(err).Message))
		}
		notifications = append(notifications, *notification)
	}

	if err := s.db.WithContext(ctx).Create(&notifications).Error; err != nil {
		return nil, fmt.Errorf("notification service: bulk create: %w", err)
	}
	return notifications, nil
}

// List returns catalog entries matching the filters, newest first, plus the
// unpaged total.
func (s *NotificationService) List(ctx context.Context, input ListCatalogInput) ([]models.Notification, int64, error) {
	ctx = ensureContext(ctx)

	query := s.db.WithContext(ctx).Model(&models.Notification{})
	if input.Type != "" {
		typ := models.NotificationType(input.Type)
		if !typ.Valid() {
			return nil, 0, apperrors.NewBadRequest(fmt.Sprintf("invalid notification type %q", input.Type))
		}
		query = query.Where("type = ?", typ)
	}
	if input.Search != "" {
		query = query.Where("title LIKE ?", "%"+input.Search+"%")
	}
	if input.StartDate != nil {
		query = query.Where("created_at >= ?", *input.StartDate)
	}
	if input.EndDate != nil {
		query = query.Where("created_at <= ?", *input.EndDate)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("notification service: count: %w", err)
	}

	limit := input.Limit
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	offset := input.Offset
	if offset < 0 {
		offset = 0
	}

	var notifications []models.Notification
	if err := query.
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&notifications).Error; err != nil {
		return nil, 0, fmt.Errorf("notification service: list: %w", err)
	}

	return notifications, total, nil
}

// Get loads a single catalog entry.
func (s *NotificationService) Get(ctx context.Context, id string) (*models.Notification, error) {
	ctx = ensureContext(ctx)

	var notification models.Notification
	if err := s.db.WithContext(ctx).First(&notification, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotificationNotFound
		}
		return nil, fmt.Errorf("notification service: load notification: %w", err)
	}
	return &notification, nil
}

// Update applies partial changes in place. CreatedAt is never touched.
func (s *NotificationService) Update(ctx context.Context, id string, input UpdateNotificationInput) (*models.Notification, error) {
	ctx = ensureContext(ctx)

	if err := validator.ValidateStruct(input); err != nil {
		return nil, apperrors.NewBadRequest(err.Error())
	}

	notification, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if input.Title != nil {
		updates["title"] = *input.Title
	}
	if input.Description != nil {
		updates["description"] = *input.Description
	}
	if input.Type != nil {
		typ := models.NotificationType(*input.Type)
		if !typ.Valid() {
			return nil, apperrors.NewBadRequest(fmt.Sprintf("invalid notification type %q", *input.Type))
		}
		updates["type"] = typ
	}
	if input.Nominal != nil {
		updates["nominal"] = *input.Nominal
	}
	if input.Date != nil {
		updates["date"] = *input.Date
	}

	if len(updates) == 0 {
		return notification, nil
	}

	if err := s.db.WithContext(ctx).Model(notification).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("notification service: update notification: %w", err)
	}

	return s.Get(ctx, id)
}

// Delete removes a catalog entry; join rows follow via the cascading foreign key.
func (s *NotificationService) Delete(ctx context.Context, id string) error {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).Delete(&models.Notification{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("notification service: delete notification: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

// DeleteOlderThan purges entries created before the cutoff and reports how
// many were removed. Used by the retention job.
func (s *NotificationService) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&models.Notification{})
	if result.Error != nil {
		return 0, fmt.Errorf("notification service: purge notifications: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// Stats summarises the catalog: totals, per-type counts, the most recent
// entry and how many were created today.
func (s *NotificationService) Stats(ctx context.Context) (*CatalogStats, error) {
	ctx = ensureContext(ctx)

	stats := &CatalogStats{ByType: map[models.NotificationType]int64{}}

	if err := s.db.WithContext(ctx).Model(&models.Notification{}).Count(&stats.Total).Error; err != nil {
		return nil, fmt.Errorf("notification service: total count: %w", err)
	}

	var typeCounts []struct {
		Type  models.NotificationType
		Count int64
	}
	if err := s.db.WithContext(ctx).Model(&models.Notification{}).
		Select("type, COUNT(*) AS count").
		Group("type").
		Scan(&typeCounts).Error; err != nil {
		return nil, fmt.Errorf("notification service: type counts: %w", err)
	}
	for _, tc := range typeCounts {
		stats.ByType[tc.Type] = tc.Count
	}

	var latest models.Notification
	err := s.db.WithContext(ctx).
		Order("created_at DESC, id DESC").
		First(&latest).Error
	switch {
	case err == nil:
		stats.Latest = &latest
	case errors.Is(err, gorm.ErrRecordNotFound):
		// empty catalog
	default:
		return nil, fmt.Errorf("notification service: latest: %w", err)
	}

	now := time.Now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if err := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("created_at >= ?", dayStart).
		Count(&stats.TodayCount).Error; err != nil {
		return nil, fmt.Errorf("notification service: today count: %w", err)
	}

	return stats, nil
}

// buildNotification validates and converts an input into a model, enforcing
// the type-conditioned field rules: nominal is only meaningful for payment,
// date only for events and assignments.
func buildNotification(input CreateNotificationInput) (*models.Notification, error) {
	if err := validator.ValidateStruct(input); err != nil {
		return nil, apperrors.NewBadRequest(err.Error())
	}

	typ := models.NotificationType(input.Type)
	if !typ.Valid() {
		return nil, apperrors.NewBadRequest(fmt.Sprintf("invalid notification type %q", input.Type))
	}

	if input.Nominal != nil && typ != models.TypePayment {
		return nil, apperrors.NewBadRequest("nominal is only allowed for payment notifications")
	}
	if input.Date != nil && typ != models.TypeEvent && typ != models.TypeAssignment {
		return nil, apperrors.NewBadRequest("date is only allowed for event and assignment notifications")
	}

	return &models.Notification{
		Title:       input.Title,
		Description: input.Description,
		Type:        typ,
		Nominal:     input.Nominal,
		Date:        input.Date,
	}, nil
}
