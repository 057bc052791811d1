package entity

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrInvalidTransition = errors.New("invalid suggestion status transition")

type SuggestionType string

const (
	SuggestionTypeDuplicate SuggestionType = "duplicate"
	SuggestionTypeStale     SuggestionType = "stale"
	SuggestionTypeRelated   SuggestionType = "related"
)

type SuggestionStatus string

const (
	SuggestionStatusPending  SuggestionStatus = "pending"
	SuggestionStatusAccepted SuggestionStatus = "accepted"
	SuggestionStatusRejected SuggestionStatus = "rejected"
)

type Suggestion struct {
	Id         uuid.UUID
	OwnerId    uuid.UUID
	Type       SuggestionType
	ItemIds    []uuid.UUID
	Reason     string
	Confidence float64
	Status     SuggestionStatus
	DedupKey   string
	CreatedAt  time.Time
}

// NewSuggestion builds a pending suggestion with its dedup key already set.
func NewSuggestion(ownerId uuid.UUID, suggestionType SuggestionType, itemIds []uuid.UUID, reason string, confidence float64) *Suggestion {
	return &Suggestion{
		Id:         uuid.New(),
		OwnerId:    ownerId,
		Type:       suggestionType,
		ItemIds:    itemIds,
		Reason:     reason,
		Confidence: confidence,
		Status:     SuggestionStatusPending,
		DedupKey:   SuggestionKey(ownerId, suggestionType, itemIds),
		CreatedAt:  time.Now(),
	}
}

// SuggestionKey identifies a suggestion independently of item order, so
// [a, b] and [b, a] collapse onto the same row.
func SuggestionKey(ownerId uuid.UUID, suggestionType SuggestionType, itemIds []uuid.UUID) string {
	ids := make([]string, len(itemIds))
	for i, id := range itemIds {
		ids[i] = id.String()
	}
	sort.Strings(ids)

	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s", ownerId, suggestionType, strings.Join(ids, ","))))
	return hex.EncodeToString(sum[:])
}

// SortItemIds orders ids ascending by their string form.
func SortItemIds(ids []uuid.UUID) []uuid.UUID {
	sorted := make([]uuid.UUID, len(ids))
	copy(sorted, ids)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].String() < sorted[j].String()
	})
	return sorted
}

// CanTransition reports whether status may move to next. Only pending
// suggestions can be accepted or rejected.
func (s SuggestionStatus) CanTransition(next SuggestionStatus) bool {
	if s != SuggestionStatusPending {
		return false
	}
	return next == SuggestionStatusAccepted || next == SuggestionStatusRejected
}

func (s *Suggestion) Transition(next SuggestionStatus) error {
	if !s.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Status, next)
	}
	s.Status = next
	return nil
}
