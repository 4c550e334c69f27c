// internal/storage/models/base.go
package models

import "time"

// BaseModel replaces gorm.Model for rows keyed by their own natural key.
type BaseModel struct {
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}
