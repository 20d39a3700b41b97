package model

import (
	"time"

	"github.com/google/uuid"
)

// Operator roles. Supervisors and admins are reporting-privileged: they may
// read drawer sessions across all operators.
const (
	RoleCashier    = "cashier"
	RoleSupervisor = "supervisor"
	RoleAdmin      = "admin"
)

// ReportingRole reports whether the role may read other operators' sessions.
func ReportingRole(role string) bool {
	return role == RoleSupervisor || role == RoleAdmin
}

// Operator stores system users with role-based access.
type Operator struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Username     string    `gorm:"uniqueIndex;not null"`
	Name         string    `gorm:"not null"`
	Email        *string
	PasswordHash string `gorm:"not null"`
	Role         string `gorm:"type:varchar(20);not null"`
	Active       bool   `gorm:"not null;default:true"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
