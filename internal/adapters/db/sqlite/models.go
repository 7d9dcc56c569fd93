package sqlite

import (
	"time"

	"gorm.io/datatypes"
)

type UserModel struct {
	ID           string `gorm:"primaryKey"`
	Email        string `gorm:"not null;uniqueIndex"`
	Name         string `gorm:"not null;default:''"`
	Role         string `gorm:"not null;default:'volunteer'"`
	PasswordHash string `gorm:"not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (UserModel) TableName() string { return "users" }

type RecordModel struct {
	ID           string         `gorm:"primaryKey"`
	CollectionID string         `gorm:"not null;index"`
	Data         datatypes.JSON `gorm:"type:json;not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (RecordModel) TableName() string { return "records" }

type CollectionModel struct {
	ID         string         `gorm:"primaryKey"`
	Name       string         `gorm:"not null;uniqueIndex"`
	Type       string         `gorm:"not null;default:'base'"`
	System     bool           `gorm:"not null;default:false"`
	Fields     datatypes.JSON `gorm:"type:json;not null"`
	Indexes    datatypes.JSON `gorm:"type:json;not null"`
	ListRule   *string
	ViewRule   *string
	CreateRule *string
	UpdateRule *string
	DeleteRule *string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (CollectionModel) TableName() string { return "_collections" }

type AppliedMigrationModel struct {
	File    string    `gorm:"primaryKey"`
	Applied time.Time `gorm:"not null"`
}

func (AppliedMigrationModel) TableName() string { return "_migrations" }

type AuditLogModel struct {
	ID          uint   `gorm:"primaryKey"`
	ActorUserID string `gorm:"not null;default:''"`
	Action      string `gorm:"not null;index"`
	TargetType  string `gorm:"not null;index"`
	TargetID    string `gorm:"not null;default:''"`
	Metadata    string
	CreatedAt   time.Time
}

func (AuditLogModel) TableName() string { return "audit_logs" }
