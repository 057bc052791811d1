package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type Suggestion struct {
	Id         uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	OwnerId    uuid.UUID      `gorm:"type:uuid;not null;index"`
	Type       string         `gorm:"type:varchar(20);not null;index"`
	ItemIds    pq.StringArray `gorm:"type:text[];not null"`
	Reason     string         `gorm:"type:text"`
	Confidence float64        `gorm:"not null;default:0"`
	Status     string         `gorm:"type:varchar(20);not null;default:'pending';index"`
	DedupKey   string         `gorm:"type:varchar(64);not null;index"`
	CreatedAt  time.Time      `gorm:"autoCreateTime;index"`
}

func (Suggestion) TableName() string {
	return "suggestions"
}
