package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Author is a site account. In practice the table holds a single row, the
// site owner; the lookup by email answers "is this authenticated identity
// the owner".
type Author struct {
	ID           string    `gorm:"type:uuid;primaryKey" json:"id"`
	Email        string    `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"not null" json:"-"`
	DisplayName  string    `gorm:"size:80;not null" json:"display_name"`
	IsOwner      bool      `gorm:"not null;default:false" json:"is_owner"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (a *Author) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
