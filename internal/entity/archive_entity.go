package entity

import (
	"time"

	"github.com/google/uuid"
)

type ArchivedPage struct {
	Id             uuid.UUID
	OwnerId        *uuid.UUID
	ItemId         *uuid.UUID
	ItemKind       ItemKind
	Url            string
	HtmlPath       string
	ScreenshotPath string
	PdfPath        string
	CreatedAt      time.Time
}

// DeadLetterJob is a queue job that exhausted its attempts or failed permanently.
type DeadLetterJob struct {
	Id        uuid.UUID
	JobId     string
	Lane      string
	Payload   []byte
	Error     string
	Attempts  int
	Permanent bool
	CreatedAt time.Time
}
