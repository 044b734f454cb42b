package models

import (
	"gorm.io/datatypes"
)

// UserRole is the closed set of account roles. Role strings arriving from the
// outside must be validated with ParseRole before any lookup runs against them.
type UserRole string

const (
	RoleAdmin         UserRole = "admin"
	RoleTeacher       UserRole = "teacher"
	RoleStudent       UserRole = "student"
	RoleParent        UserRole = "parent"
	RoleStudentParent UserRole = "student_parent"
)

// AllRoles lists every recognised role.
var AllRoles = []UserRole{RoleAdmin, RoleTeacher, RoleStudent, RoleParent, RoleStudentParent}

// Valid reports whether the role is part of the closed enum.
func (r UserRole) Valid() bool {
	switch r {
	case RoleAdmin, RoleTeacher, RoleStudent, RoleParent, RoleStudentParent:
		return true
	default:
		return false
	}
}

// ParseRole converts a raw string into a UserRole, reporting unknown values.
func ParseRole(raw string) (UserRole, bool) {
	role := UserRole(raw)
	return role, role.Valid()
}

// UserGender captures the optional gender field on student records.
type UserGender string

const (
	GenderMale   UserGender = "male"
	GenderFemale UserGender = "female"
)

// User describes a school account: students, teachers, parents and admins.
// The fan-out engine consumes users read-only, for existence checks and
// role-filtered broadcast.
type User struct {
	BaseModel

	NIS    *string  `gorm:"type:varchar(50);uniqueIndex" json:"nis,omitempty"`
	Name   string   `gorm:"type:varchar(100);not null" json:"name"`
	Role   UserRole `gorm:"type:varchar(32);not null;default:'student';index" json:"role"`
	Grade  *string  `gorm:"type:varchar(16)" json:"grade,omitempty"`
	Gender *string  `gorm:"type:varchar(16)" json:"gender,omitempty"`
	Email  *string  `gorm:"type:varchar(100);uniqueIndex" json:"email,omitempty"`
	Region *string  `gorm:"type:varchar(100)" json:"region,omitempty"`

	DOB *datatypes.Date `json:"dob,omitempty"`
}
