package models

import (
	"time"

	"gorm.io/gorm"
)

// TenantModel is the persisted row for a tenant's process and plan state.
type TenantModel struct {
	ID              string `gorm:"primaryKey;size:64"`
	Name            string `gorm:"size:128;not null"`
	Slug            string `gorm:"uniqueIndex;size:64;not null"`
	Status          string `gorm:"size:32;not null"`
	Port            int
	Plan            string `gorm:"size:32"`
	Provider        string `gorm:"size:32"`
	Model           string `gorm:"size:128"`
	LimitMessagesDay int
	LimitChannels    int
	LimitMembers     int
	PID              int
	CPUPercent       float64
	MemBytes         uint64
	DiskBytes        uint64
	ResourceSampledAt *time.Time
	OwnerID          string `gorm:"size:64"`
	PairingCode      string `gorm:"size:16"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
	DeletedAt        gorm.DeletedAt `gorm:"index"`
}

func (TenantModel) TableName() string { return "tenants" }

// UserModel is the persisted row for an admin or tenant-bound user.
type UserModel struct {
	ID         string `gorm:"primaryKey;size:64"`
	Email      string `gorm:"uniqueIndex;size:255;not null"`
	PasswordHash string `gorm:"size:255;not null"`
	Role       string `gorm:"size:32;not null"`
	TenantID   string `gorm:"size:64;index"`
	Status     string `gorm:"size:16;not null;default:active"`
	LastLoginAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
	DeletedAt  gorm.DeletedAt `gorm:"index"`
}

func (UserModel) TableName() string { return "users" }

// AuditEventModel is the persisted row for one Admin API audit entry.
type AuditEventModel struct {
	ID        string `gorm:"primaryKey;size:64"`
	TenantID  string `gorm:"size:64;index"`
	ActorID   string `gorm:"size:64"`
	Action    string `gorm:"size:64;not null"`
	Detail    string `gorm:"type:text"`
	CreatedAt time.Time `gorm:"index"`
}

func (AuditEventModel) TableName() string { return "audit_events" }
