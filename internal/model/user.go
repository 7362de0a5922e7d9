package model

import "time"

// Role values for a User.
const (
	RoleEmployee = "EMPLOYEE"
	RoleAdmin    = "ADMIN"
)

// User represents an office worker identified by an employee code.
type User struct {
	ID         int64     `gorm:"primaryKey" json:"id"`
	EmployeeID string    `gorm:"uniqueIndex;size:64;not null" json:"employeeId"`
	Name       string    `gorm:"size:128;not null" json:"name"`
	Role       string    `gorm:"size:16;not null" json:"role"`
	CreatedAt  time.Time `gorm:"not null" json:"createdAt"`
	UpdatedAt  time.Time `gorm:"not null" json:"-"`
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
