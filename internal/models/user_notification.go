package models

import (
	"time"
)

// UserNotification links one user to one notification and carries the
// per-recipient read state. The composite unique index on
// (user_id, notification_id) is the sole backstop against duplicate fan-out
// under concurrent assignment calls; the engine never takes application locks.
//
// ReadAt is set exactly once, when IsRead transitions to true. There is no
// mark-unread operation.
type UserNotification struct {
	BaseModel

	UserID         string `gorm:"type:uuid;not null;uniqueIndex:idx_user_notification" json:"user_id"`
	NotificationID string `gorm:"type:uuid;not null;uniqueIndex:idx_user_notification" json:"notification_id"`

	IsRead bool       `gorm:"not null;default:false;index" json:"is_read"`
	ReadAt *time.Time `json:"read_at,omitempty"`

	User         *User         `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"user,omitempty"`
	Notification *Notification `gorm:"foreignKey:NotificationID;constraint:OnDelete:CASCADE" json:"notification,omitempty"`
}
