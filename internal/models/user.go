package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type UserRole string

const (
	RoleAdmin       UserRole = "admin"
	RoleTestCreator UserRole = "testCreator"
	RoleTestTaker   UserRole = "testTaker"
)

type User struct {
	ID           string   `json:"id" gorm:"primaryKey;size:36"`
	Name         string   `json:"name" gorm:"not null;size:100"`
	Email        string   `json:"email" gorm:"uniqueIndex;not null;size:255"`
	Role         UserRole `json:"role" gorm:"size:20;default:testTaker;index"`
	PasswordHash string   `json:"-" gorm:"not null"`
	IsActive     bool     `json:"isActive" gorm:"default:true"`
	CreatedBy    *string  `json:"createdBy,omitempty" gorm:"size:36"`

	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}
