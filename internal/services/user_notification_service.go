package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sekolahku/backend/internal/models"
	apperrors "github.com/sekolahku/backend/pkg/errors"
	"github.com/sekolahku/backend/pkg/logger"
	"github.com/sekolahku/backend/pkg/metrics"
	"github.com/sekolahku/backend/pkg/validator"
)

// Assignment strategy labels used for metrics.
const (
	strategyDirect = "direct"
	strategyBulk   = "bulk"
	strategyRole   = "role"
)

// AssignInput targets one notification at an explicit list of users.
type AssignInput struct {
	NotificationID string   `json:"notification_id" validate:"required"`
	UserIDs        []string `json:"user_ids" validate:"required,min=1,max=1000,dive,required"`
}

// BulkAssignInput targets the full cross product of notifications and users.
type BulkAssignInput struct {
	NotificationIDs []string `json:"notification_ids" validate:"required,min=1,max=100,dive,required"`
	UserIDs         []string `json:"user_ids" validate:"required,min=1,max=1000,dive,required"`
}

// AssignByRoleInput targets one notification at every user holding any of the roles.
type AssignByRoleInput struct {
	NotificationID string   `json:"notification_id" validate:"required"`
	Roles          []string `json:"roles" validate:"required,min=1,dive,required"`
}

// MarkReadInput lists the notifications a user wants marked read.
type MarkReadInput struct {
	NotificationIDs []string `json:"notification_ids" validate:"required,min=1,dive,required"`
}

// AssignmentResult reports the outcome of a fan-out call. SkippedCount covers
// pairs that already existed, including pairs that lost a race to a concurrent
// call; skipping is a normal outcome, not an error.
type AssignmentResult struct {
	Assignments   []models.UserNotification `json:"assignments"`
	AssignedCount int                       `json:"assigned_count"`
	SkippedCount  int                       `json:"skipped_count"`
}

// MarkReadResult reports UNREAD-to-READ transitions versus rows that were
// already read. Pairs that do not exist are silently ignored.
type MarkReadResult struct {
	MarkedReadCount  int `json:"marked_read_count"`
	AlreadyReadCount int `json:"already_read_count"`
}

// ListFeedInput filters a user's notification feed.
type ListFeedInput struct {
	UserID     string
	UnreadOnly bool
	Type       string
	Limit      int
	Offset     int
}

// Recipient annotates a join row with the recipient's display name.
type Recipient struct {
	ID             string     `json:"id"`
	UserID         string     `json:"user_id"`
	NotificationID string     `json:"notification_id"`
	UserName       string     `json:"user_name"`
	IsRead         bool       `json:"is_read"`
	ReadAt         *time.Time `json:"read_at,omitempty"`
}

// UserStats aggregates a user's notification state. ReadCount is always
// derived as total minus unread, never stored.
type UserStats struct {
	TotalNotifications int64                             `json:"total_notifications"`
	UnreadCount        int64                             `json:"unread_count"`
	ReadCount          int64                             `json:"read_count"`
	UnreadByType       map[models.NotificationType]int64 `json:"unread_by_type"`
	LatestUnread       *models.UserNotification          `json:"latest_unread,omitempty"`
}

// UserNotificationService is the fan-out and read-tracking engine. It creates
// join rows linking users to notifications, keeps at most one row per
// (user, notification) pair, and maintains per-row read state.
//
// Concurrent calls are not serialised here; the composite unique constraint on
// the join table is the sole backstop, and duplicate-insert rejections under
// race are absorbed into the skipped count.
type UserNotificationService struct {
	db  *gorm.DB
	log *zap.Logger
}

// NewUserNotificationService constructs the fan-out engine.
func NewUserNotificationService(db *gorm.DB) (*UserNotificationService, error) {
	if db == nil {
		return nil, errors.New("user notification service: db is required")
	}
	return &UserNotificationService{
		db:  db,
		log: logger.WithModule("fanout"),
	}, nil
}

// AssignToUsers fans one notification out to an explicit user list.
func (s *UserNotificationService) AssignToUsers(ctx context.Context, input AssignInput) (*AssignmentResult, error) {
	ctx = ensureContext(ctx)

	if err := validator.ValidateStruct(input); err != nil {
		return nil, apperrors.NewBadRequest(err.Error())
	}

	userIDs := normaliseIDs(input.UserIDs)
	if len(userIDs) == 0 {
		return nil, apperrors.NewBadRequest("at least one user id must be provided")
	}

	if err := s.requireNotifications(ctx, []string{input.NotificationID}); err != nil {
		return nil, err
	}
	if err := s.requireUsers(ctx, userIDs); err != nil {
		return nil, err
	}

	result, err := s.reconcile(ctx, []string{input.NotificationID}, userIDs)
	if err != nil {
		return nil, err
	}
	s.observe(strategyDirect, result)
	return result, nil
}

// BulkAssign fans multiple notifications out to multiple users: the candidate
// set is the full cross product. Missing notifications and missing users are
// checked as two independent sets and both reported when both fail.
func (s *UserNotificationService) BulkAssign(ctx context.Context, input BulkAssignInput) (*AssignmentResult, error) {
	ctx = ensureContext(ctx)

	if err := validator.ValidateStruct(input); err != nil {
		return nil, apperrors.NewBadRequest(err.Error())
	}

	notificationIDs := normaliseIDs(input.NotificationIDs)
	userIDs := normaliseIDs(input.UserIDs)
	if len(notificationIDs) == 0 || len(userIDs) == 0 {
		return nil, apperrors.NewBadRequest("notification ids and user ids must not be empty")
	}

	missingNotifications, err := s.missingNotifications(ctx, notificationIDs)
	if err != nil {
		return nil, err
	}
	missingUsers, err := s.missingUsers(ctx, userIDs)
	if err != nil {
		return nil, err
	}
	if len(missingNotifications) > 0 || len(missingUsers) > 0 {
		return nil, missingReferencesError(missingNotifications, missingUsers)
	}

	result, err := s.reconcile(ctx, notificationIDs, userIDs)
	if err != nil {
		return nil, err
	}
	s.observe(strategyBulk, result)
	return result, nil
}

// AssignByRole fans one notification out to every user currently holding any
// of the supplied roles. Role names are validated against the closed enum
// before any store access.
func (s *UserNotificationService) AssignByRole(ctx context.Context, input AssignByRoleInput) (*AssignmentResult, error) {
	ctx = ensureContext(ctx)

	if err := validator.ValidateStruct(input); err != nil {
		return nil, apperrors.NewBadRequest(err.Error())
	}

	roles := make([]models.UserRole, 0, len(input.Roles))
	seen := make(map[models.UserRole]struct{}, len(input.Roles))
	for _, raw := range input.Roles {
		role, ok := models.ParseRole(strings.TrimSpace(raw))
		if !ok {
			return nil, apperrors.NewBadRequest(fmt.Sprintf("invalid role %q", raw))
		}
		if _, dup := seen[role]; dup {
			continue
		}
		seen[role] = struct{}{}
		roles = append(roles, role)
	}

	if err := s.requireNotifications(ctx, []string{input.NotificationID}); err != nil {
		return nil, err
	}

	var users []models.User
	if err := s.db.WithContext(ctx).Where("role IN ?", roles).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("fanout: resolve roles: %w", err)
	}
	if len(users) == 0 {
		return nil, apperrors.New(
			"NOT_FOUND",
			fmt.Sprintf("no users found with roles: %s", joinRoles(roles)),
			http.StatusNotFound,
		).WithDetails(map[string]any{"roles": roles})
	}

	userIDs := make([]string, 0, len(users))
	for _, user := range users {
		userIDs = append(userIDs, user.ID)
	}

	result, err := s.reconcile(ctx, []string{input.NotificationID}, userIDs)
	if err != nil {
		return nil, err
	}
	s.observe(strategyRole, result)
	return result, nil
}

// MarkRead transitions the user's UNREAD rows among the supplied notification
// IDs to READ with a single timestamp. Rows already read count towards
// AlreadyReadCount; pairs that do not exist are ignored. Repeating the call is
// a no-op.
func (s *UserNotificationService) MarkRead(ctx context.Context, userID string, input MarkReadInput) (*MarkReadResult, error) {
	ctx = ensureContext(ctx)

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, apperrors.NewBadRequest("user id is required")
	}
	if err := validator.ValidateStruct(input); err != nil {
		return nil, apperrors.NewBadRequest(err.Error())
	}

	notificationIDs := normaliseIDs(input.NotificationIDs)
	if len(notificationIDs) == 0 {
		return nil, apperrors.NewBadRequest("at least one notification id must be provided")
	}

	result := &MarkReadResult{}
	now := time.Now().UTC()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var total int64
		if err := tx.Model(&models.UserNotification{}).
			Where("user_id = ? AND notification_id IN ?", userID, notificationIDs).
			Count(&total).Error; err != nil {
			return fmt.Errorf("fanout: count rows: %w", err)
		}

		update := tx.Model(&models.UserNotification{}).
			Where("user_id = ? AND notification_id IN ? AND is_read = ?", userID, notificationIDs, false).
			Updates(map[string]any{"is_read": true, "read_at": now})
		if update.Error != nil {
			return fmt.Errorf("fanout: mark read: %w", update.Error)
		}

		result.MarkedReadCount = int(update.RowsAffected)
		result.AlreadyReadCount = int(total - update.RowsAffected)
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.NotificationsRead.Add(float64(result.MarkedReadCount))
	return result, nil
}

// MarkAllRead transitions every UNREAD row owned by the user and returns how
// many changed. Idempotent: a second call reports zero.
func (s *UserNotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	ctx = ensureContext(ctx)

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, apperrors.NewBadRequest("user id is required")
	}

	now := time.Now().UTC()
	result := s.db.WithContext(ctx).Model(&models.UserNotification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Updates(map[string]any{"is_read": true, "read_at": now})
	if result.Error != nil {
		return 0, fmt.Errorf("fanout: mark all read: %w", result.Error)
	}

	metrics.NotificationsRead.Add(float64(result.RowsAffected))
	return result.RowsAffected, nil
}

// ListForUser returns the user's feed ordered by notification creation time,
// newest first (ties broken by notification ID, descending), plus the unpaged
// total for the applied filters.
func (s *UserNotificationService) ListForUser(ctx context.Context, input ListFeedInput) ([]models.UserNotification, int64, error) {
	ctx = ensureContext(ctx)

	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return nil, 0, apperrors.NewBadRequest("user id is required")
	}
	if input.Type != "" && !models.NotificationType(input.Type).Valid() {
		return nil, 0, apperrors.NewBadRequest(fmt.Sprintf("invalid notification type %q", input.Type))
	}

	base := func() *gorm.DB {
		query := s.db.WithContext(ctx).Model(&models.UserNotification{}).
			Joins("JOIN notifications ON notifications.id = user_notifications.notification_id").
			Where("user_notifications.user_id = ?", userID)
		if input.UnreadOnly {
			query = query.Where("user_notifications.is_read = ?", false)
		}
		if input.Type != "" {
			query = query.Where("notifications.type = ?", models.NotificationType(input.Type))
		}
		return query
	}

	var total int64
	if err := base().Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("fanout: count feed: %w", err)
	}

	limit := input.Limit
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	offset := input.Offset
	if offset < 0 {
		offset = 0
	}

	var rows []models.UserNotification
	if err := base().
		Select("user_notifications.*").
		Order("notifications.created_at DESC, notifications.id DESC").
		Limit(limit).
		Offset(offset).
		Preload("Notification").
		Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("fanout: list feed: %w", err)
	}

	return rows, total, nil
}

// Recipients lists everyone a notification was fanned out to, optionally
// filtered by read status, each annotated with the recipient's name.
func (s *UserNotificationService) Recipients(ctx context.Context, notificationID string, readStatus *bool) ([]Recipient, error) {
	ctx = ensureContext(ctx)

	if err := s.requireNotifications(ctx, []string{notificationID}); err != nil {
		return nil, err
	}

	query := s.db.WithContext(ctx).
		Where("notification_id = ?", notificationID).
		Preload("User")
	if readStatus != nil {
		query = query.Where("is_read = ?", *readStatus)
	}

	var rows []models.UserNotification
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("fanout: list recipients: %w", err)
	}

	recipients := make([]Recipient, 0, len(rows))
	for _, row := range rows {
		recipient := Recipient{
			ID:             row.ID,
			UserID:         row.UserID,
			NotificationID: row.NotificationID,
			IsRead:         row.IsRead,
			ReadAt:         row.ReadAt,
		}
		if row.User != nil {
			recipient.UserName = row.User.Name
		}
		recipients = append(recipients, recipient)
	}
	return recipients, nil
}

// StatsForUser aggregates the user's read state. The unread-by-type map omits
// types with zero unread rows; the latest unread row is ordered by
// notification creation time, ties broken by notification ID, descending.
func (s *UserNotificationService) StatsForUser(ctx context.Context, userID string) (*UserStats, error) {
	ctx = ensureContext(ctx)

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, apperrors.NewBadRequest("user id is required")
	}

	stats := &UserStats{UnreadByType: map[models.NotificationType]int64{}}

	if err := s.db.WithContext(ctx).Model(&models.UserNotification{}).
		Where("user_id = ?", userID).
		Count(&stats.TotalNotifications).Error; err != nil {
		return nil, fmt.Errorf("fanout: total count: %w", err)
	}

	if err := s.db.WithContext(ctx).Model(&models.UserNotification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&stats.UnreadCount).Error; err != nil {
		return nil, fmt.Errorf("fanout: unread count: %w", err)
	}

	stats.ReadCount = stats.TotalNotifications - stats.UnreadCount

	var typeCounts []struct {
		Type  models.NotificationType
		Count int64
	}
	if err := s.db.WithContext(ctx).Model(&models.UserNotification{}).
		Select("notifications.type AS type, COUNT(*) AS count").
		Joins("JOIN notifications ON notifications.id = user_notifications.notification_id").
		Where("user_notifications.user_id = ? AND user_notifications.is_read = ?", userID, false).
		Group("notifications.type").
		Scan(&typeCounts).Error; err != nil {
		return nil, fmt.Errorf("fanout: unread by type: %w", err)
	}
	for _, tc := range typeCounts {
		stats.UnreadByType[tc.Type] = tc.Count
	}

	var latest models.UserNotification
	err := s.db.WithContext(ctx).Model(&models.UserNotification{}).
		Select("user_notifications.*").
		Joins("JOIN notifications ON notifications.id = user_notifications.notification_id").
		Where("user_notifications.user_id = ? AND user_notifications.is_read = ?", userID, false).
		Order("notifications.created_at DESC, notifications.id DESC").
		Preload("Notification").
		First(&latest).Error
	switch {
	case err == nil:
		stats.LatestUnread = &latest
	case errors.Is(err, gorm.ErrRecordNotFound):
		// everything read
	default:
		return nil, fmt.Errorf("fanout: latest unread: %w", err)
	}

	return stats, nil
}

// Remove deletes the join row for one (user, notification) pair.
func (s *UserNotificationService) Remove(ctx context.Context, userID, notificationID string) error {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).
		Where("user_id = ? AND notification_id = ?", userID, notificationID).
		Delete(&models.UserNotification{})
	if result.Error != nil {
		return fmt.Errorf("fanout: remove assignment: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// RemoveAllForUser deletes every join row owned by the user and reports how
// many were removed.
func (s *UserNotificationService) RemoveAllForUser(ctx context.Context, userID string) (int64, error) {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&models.UserNotification{})
	if result.Error != nil {
		return 0, fmt.Errorf("fanout: remove assignments: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// reconcile computes candidate pairs (users x notifications), subtracts the
// pairs already present and inserts only the delta inside one transaction.
// The existing-pair lookup is a single batched query keyed on both ID sets;
// because that query returns a superset for multi-notification requests, it is
// reduced to exact pairs in memory before the delta is computed.
func (s *UserNotificationService) reconcile(ctx context.Context, notificationIDs, userIDs []string) (*AssignmentResult, error) {
	result := &AssignmentResult{}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing []models.UserNotification
		if err := tx.
			Where("notification_id IN ? AND user_id IN ?", notificationIDs, userIDs).
			Find(&existing).Error; err != nil {
			return fmt.Errorf("fanout: load existing pairs: %w", err)
		}

		existingPairs := make(map[assignmentPair]struct{}, len(existing))
		for _, row := range existing {
			existingPairs[assignmentPair{row.UserID, row.NotificationID}] = struct{}{}
		}

		delta := make([]models.UserNotification, 0, len(userIDs)*len(notificationIDs))
		skipped := 0
		for _, userID := range userIDs {
			for _, notificationID := range notificationIDs {
				if _, ok := existingPairs[assignmentPair{userID, notificationID}]; ok {
					skipped++
					continue
				}
				delta = append(delta, models.UserNotification{
					UserID:         userID,
					NotificationID: notificationID,
				})
			}
		}

		created, raceSkipped, err := s.insertAssignments(tx, delta)
		if err != nil {
			return err
		}

		result.Assignments = created
		result.AssignedCount = len(created)
		result.SkippedCount = skipped + raceSkipped
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Debug("fan-out reconciled",
		zap.Int("assigned", result.AssignedCount),
		zap.Int("skipped", result.SkippedCount),
		zap.Int("notifications", len(notificationIDs)),
		zap.Int("users", len(userIDs)),
	)
	return result, nil
}

type assignmentPair struct {
	userID         string
	notificationID string
}

// insertAssignments persists the delta. Duplicate-pair rejections from the
// store (a concurrent call won the race between our read and write) are
// absorbed and reported as skipped, never surfaced to the caller.
func (s *UserNotificationService) insertAssignments(tx *gorm.DB, delta []models.UserNotification) ([]models.UserNotification, int, error) {
	if len(delta) == 0 {
		return nil, 0, nil
	}

	conflict := clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "notification_id"}},
		DoNothing: true,
	}

	result := tx.Clauses(conflict).CreateInBatches(&delta, 500)
	if result.Error != nil {
		if !isUniqueConstraintError(result.Error) {
			return nil, 0, fmt.Errorf("fanout: insert assignments: %w", result.Error)
		}
		// Driver surfaced the constraint instead of honouring the conflict
		// clause; retry row by row so only the losing pairs are skipped.
		return s.insertAssignmentsOneByOne(tx, delta)
	}

	inserted := int(result.RowsAffected)
	raceSkipped := len(delta) - inserted
	if raceSkipped == 0 {
		return delta, 0, nil
	}

	// Pairs that lost the race kept their client-generated IDs without a
	// matching row; keep only the rows that actually persisted.
	ids := make([]string, 0, len(delta))
	for _, row := range delta {
		ids = append(ids, row.ID)
	}
	var persisted []models.UserNotification
	if err := tx.Where("id IN ?", ids).Find(&persisted).Error; err != nil {
		return nil, 0, fmt.Errorf("fanout: reload assignments: %w", err)
	}
	return persisted, raceSkipped, nil
}

func (s *UserNotificationService) insertAssignmentsOneByOne(tx *gorm.DB, delta []models.UserNotification) ([]models.UserNotification, int, error) {
	conflict := clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "notification_id"}},
		DoNothing: true,
	}

	created := make([]models.UserNotification, 0, len(delta))
	raceSkipped := 0
	for i := range delta {
		row := delta[i]
		row.ID = ""
		result := tx.Clauses(conflict).Create(&row)
		if result.Error != nil {
			if isUniqueConstraintError(result.Error) {
				raceSkipped++
				continue
			}
			return nil, 0, fmt.Errorf("fanout: insert assignment: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			raceSkipped++
			continue
		}
		created = append(created, row)
	}
	return created, raceSkipped, nil
}

// requireNotifications fails with a NotFound enumerating every missing ID.
func (s *UserNotificationService) requireNotifications(ctx context.Context, ids []string) error {
	missing, err := s.missingNotifications(ctx, ids)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return apperrors.NewNotFound("notifications", missing)
	}
	return nil
}

// requireUsers fails with a NotFound enumerating every missing ID.
func (s *UserNotificationService) requireUsers(ctx context.Context, ids []string) error {
	missing, err := s.missingUsers(ctx, ids)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return apperrors.NewNotFound("users", missing)
	}
	return nil
}

func (s *UserNotificationService) missingNotifications(ctx context.Context, ids []string) ([]string, error) {
	var found []string
	if err := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id IN ?", ids).
		Pluck("id", &found).Error; err != nil {
		return nil, fmt.Errorf("fanout: check notifications: %w", err)
	}
	return subtractFound(ids, found), nil
}

func (s *UserNotificationService) missingUsers(ctx context.Context, ids []string) ([]string, error) {
	var found []string
	if err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id IN ?", ids).
		Pluck("id", &found).Error; err != nil {
		return nil, fmt.Errorf("fanout: check users: %w", err)
	}
	return subtractFound(ids, found), nil
}

func subtractFound(requested, found []string) []string {
	foundSet := make(map[string]struct{}, len(found))
	for _, id := range found {
		foundSet[id] = struct{}{}
	}
	return missingIDs(requested, foundSet)
}

// missingReferencesError reports missing notifications and users together so
// a bulk caller learns about both failing sets at once.
func missingReferencesError(missingNotifications, missingUsers []string) *apperrors.AppError {
	parts := make([]string, 0, 2)
	details := map[string]any{}
	if len(missingNotifications) > 0 {
		parts = append(parts, fmt.Sprintf("notifications not found: %s", strings.Join(missingNotifications, ", ")))
		details["missing_notification_ids"] = missingNotifications
	}
	if len(missingUsers) > 0 {
		parts = append(parts, fmt.Sprintf("users not found: %s", strings.Join(missingUsers, ", ")))
		details["missing_user_ids"] = missingUsers
	}
	return apperrors.New("NOT_FOUND", strings.Join(parts, "; "), http.StatusNotFound).WithDetails(details)
}

func (s *UserNotificationService) observe(strategy string, result *AssignmentResult) {
	metrics.AssignmentsCreated.WithLabelValues(strategy).Add(float64(result.AssignedCount))
	metrics.AssignmentsSkipped.WithLabelValues(strategy).Add(float64(result.SkippedCount))
}

func joinRoles(roles []models.UserRole) string {
	names := make([]string, 0, len(roles))
	for _, role := range roles {
		names = append(names, string(role))
	}
	return strings.Join(names, ", ")
}
