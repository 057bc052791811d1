package specification

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ByOwner filters by owner_id
type ByOwner struct {
	OwnerID uuid.UUID
}

func (s ByOwner) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("owner_id = ?", s.OwnerID)
}

type NotArchived struct{}

func (s NotArchived) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("is_archived = ?", false)
}

type HasEmbedding struct{}

func (s HasEmbedding) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("embedding IS NOT NULL")
}

type CreatedBefore struct {
	Cutoff time.Time
}

func (s CreatedBefore) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("created_at < ?", s.Cutoff)
}

// ReferencedBefore matches rows whose last access, or creation when never
// accessed, is older than Cutoff. Only tabs track access.
type ReferencedBefore struct {
	Cutoff      time.Time
	TrackAccess bool
}

func (s ReferencedBefore) Apply(db *gorm.DB) *gorm.DB {
	if !s.TrackAccess {
		return db.Where("created_at < ?", s.Cutoff)
	}
	return db.Where("COALESCE(last_accessed, created_at) < ?", s.Cutoff)
}

type ExcludeID struct {
	ID uuid.UUID
}

func (s ExcludeID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("id <> ?", s.ID)
}
