package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

// ItemBase holds the columns shared by tabs and bookmarks.
type ItemBase struct {
	Id         uuid.UUID        `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	OwnerId    uuid.UUID        `gorm:"type:uuid;not null;index"`
	Url        string           `gorm:"type:text;not null;index"`
	Title      string           `gorm:"type:text"`
	Favicon    string           `gorm:"type:text"`
	Content    string           `gorm:"type:text"`
	Summary    string           `gorm:"type:text"`
	Category   string           `gorm:"type:varchar(100)"`
	Tags       pq.StringArray   `gorm:"type:text[]"`
	Entities   datatypes.JSON   `gorm:"type:jsonb"`
	Embedding  *pgvector.Vector `gorm:"type:vector(384)"`
	IsArchived bool             `gorm:"default:false;not null;index"`
	CreatedAt  time.Time        `gorm:"autoCreateTime"`
	UpdatedAt  time.Time        `gorm:"autoUpdateTime"`
}

type Tab struct {
	ItemBase     `gorm:"embedded"`
	LastAccessed *time.Time `gorm:"index"`
	AccessCount  int        `gorm:"default:0;not null"`
}

func (Tab) TableName() string {
	return "tabs"
}

type Bookmark struct {
	ItemBase `gorm:"embedded"`
	Folder   string `gorm:"type:varchar(255)"`
}

func (Bookmark) TableName() string {
	return "bookmarks"
}
