package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// RevokedToken belongs to the auth collaborator; this service only purges it.
type RevokedToken struct {
	Token     string    `gorm:"type:text;primaryKey"`
	ExpiresAt time.Time `gorm:"not null;index"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (RevokedToken) TableName() string {
	return "revoked_tokens"
}

type ArchivedPage struct {
	Id             uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	OwnerId        *uuid.UUID `gorm:"type:uuid;index"`
	ItemId         *uuid.UUID `gorm:"type:uuid;index"`
	ItemKind       string     `gorm:"type:varchar(20)"`
	Url            string     `gorm:"type:text;not null"`
	HtmlPath       string     `gorm:"type:text"`
	ScreenshotPath string     `gorm:"type:text"`
	PdfPath        string     `gorm:"type:text"`
	CreatedAt      time.Time  `gorm:"autoCreateTime"`
}

func (ArchivedPage) TableName() string {
	return "archived_pages"
}

type DeadLetterJob struct {
	Id        uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	JobId     string         `gorm:"type:varchar(100);not null;index"`
	Lane      string         `gorm:"type:varchar(50);not null;index"`
	Payload   datatypes.JSON `gorm:"type:jsonb"`
	Error     string         `gorm:"type:text"`
	Attempts  int            `gorm:"not null"`
	Permanent bool           `gorm:"not null;default:false"`
	CreatedAt time.Time      `gorm:"autoCreateTime;index"`
}

func (DeadLetterJob) TableName() string {
	return "dead_letter_jobs"
}
