package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/sekolahku/backend/internal/database/testutil"
	"github.com/sekolahku/backend/internal/models"
)

func createTestUser(t *testing.T, db *gorm.DB, name string, role models.UserRole) models.User {
	t.Helper()

	user := models.User{Name: name, Role: role}
	require.NoError(t, db.Create(&user).Error)
	return user
}

func createTestNotification(t *testing.T, db *gorm.DB, title string, typ models.NotificationType, createdAt time.Time) models.Notification {
	t.Helper()

	notification := models.Notification{
		BaseModel: models.BaseModel{CreatedAt: createdAt},
		Title:     title,
		Type:      typ,
	}
	require.NoError(t, db.Create(&notification).Error)
	return notification
}

func countPairs(t *testing.T, db *gorm.DB, userID, notificationID string) int64 {
	t.Helper()

	var count int64
	require.NoError(t, db.Model(&models.UserNotification{}).
		Where("user_id = ? AND notification_id = ?", userID, notificationID).
		Count(&count).Error)
	return count
}

func newFanoutFixture(t *testing.T) (*gorm.DB, *UserNotificationService) {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	svc, err := NewUserNotificationService(db)
	require.NoError(t, err)
	return db, svc
}
