package models

import (
	"time"
)

// NotificationType classifies catalog entries. Nominal is only meaningful for
// payment notifications; Date only for events and assignments.
type NotificationType string

const (
	TypeGeneral      NotificationType = "general"
	TypeAnnouncement NotificationType = "announcement"
	TypeAssignment   NotificationType = "assignment"
	TypeEvent        NotificationType = "event"
	TypePayment      NotificationType = "payment"
)

// Valid reports whether the type is part of the closed enum.
func (t NotificationType) Valid() bool {
	switch t {
	case TypeGeneral, TypeAnnouncement, TypeAssignment, TypeEvent, TypePayment:
		return true
	default:
		return false
	}
}

// Notification is a catalog entry. Content only; per-recipient state lives on
// UserNotification rows, which are removed when the notification is deleted.
type Notification struct {
	BaseModel

	Title       string           `gorm:"type:varchar(255);not null" json:"title"`
	Description string           `gorm:"type:text" json:"description,omitempty"`
	Type        NotificationType `gorm:"type:varchar(32);not null;default:'general';index" json:"type"`
	Nominal     *float64         `gorm:"type:decimal(10,2)" json:"nominal,omitempty"`
	Date        *time.Time       `json:"date,omitempty"`

	Recipients []UserNotification `gorm:"foreignKey:NotificationID;constraint:OnDelete:CASCADE" json:"-"`
}
