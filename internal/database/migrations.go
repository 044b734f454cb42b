package database

import (
	"gorm.io/gorm"

	"github.com/sekolahku/backend/internal/models"
)

// AutoMigrate creates or updates the database schema for all models. The
// composite unique index on user_notifications (user_id, notification_id) is
// created here and is the storage-level backstop the fan-out engine relies on.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Notification{},
		&models.UserNotification{},
	)
}

// SeedData populates the default administrator account when missing.
func SeedData(db *gorm.DB) error {
	admin := models.User{
		BaseModel: models.BaseModel{ID: "admin"},
		Name:      "Administrator",
		Role:      models.RoleAdmin,
	}

	return db.Where(models.User{BaseModel: models.BaseModel{ID: admin.ID}}).
		Attrs(admin).
		FirstOrCreate(&models.User{}).Error
}
