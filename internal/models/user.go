package models

import (
	"time"

	"gorm.io/gorm"
)

// UserAuth represents an authenticated agent/broker account
type UserAuth struct {
	ID           string `gorm:"column:user_id;primaryKey;type:uuid;default:gen_random_uuid()" json:"userId"`
	Email        string `gorm:"column:email;uniqueIndex;not null" json:"email"`
	PasswordHash string `gorm:"column:password_hash;not null" json:"-"`
	Name         string `gorm:"column:name" json:"name"`
	Role         string `gorm:"column:role;default:'agent'" json:"role"` // agent | admin
	UserType     string `gorm:"column:user_type;default:'seller'" json:"userType"`

	CreatedAt time.Time      `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt time.Time      `gorm:"column:updated_at" json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name
func (UserAuth) TableName() string {
	return "user_auth"
}
