package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Group struct {
	ID            string                      `json:"id" gorm:"primaryKey;size:36"`
	Name          string                      `json:"groupName" gorm:"not null;size:200;uniqueIndex"`
	Description   string                      `json:"description" gorm:"type:text"`
	CreatedBy     string                      `json:"createdBy" gorm:"not null;index;size:36"`
	MemberUserIDs datatypes.JSONSlice[string] `json:"members" gorm:"type:jsonb"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (Group) TableName() string {
	return "groups"
}

func (g *Group) BeforeCreate(tx *gorm.DB) error {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	return nil
}
