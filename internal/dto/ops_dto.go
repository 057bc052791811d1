package dto

import (
	"time"

	"github.com/google/uuid"
)

// PassReport is the outcome of one detection pass for one owner.
type PassReport struct {
	Created int    `json:"created"`
	Skipped int    `json:"skipped"`
	Error   string `json:"error,omitempty"`
}

type SuggestionRunReport struct {
	OwnerId   uuid.UUID  `json:"ownerId"`
	Duplicate PassReport `json:"duplicate"`
	Stale     PassReport `json:"stale"`
	Related   PassReport `json:"related"`
}

// Failed reports whether every pass of the run failed.
func (r *SuggestionRunReport) Failed() bool {
	return r.Duplicate.Error != "" && r.Stale.Error != "" && r.Related.Error != ""
}

type EnqueueResponse struct {
	JobId string `json:"jobId"`
	Lane  string `json:"lane"`
}

type GenerateSuggestionsRequest struct {
	OwnerId *uuid.UUID `json:"ownerId,omitempty"`
}

type SchedulerTaskResponse struct {
	Name      string     `json:"name"`
	Spec      string     `json:"spec"`
	Running   bool       `json:"running"`
	NextRun   *time.Time `json:"nextRun,omitempty"`
	PrevRun   *time.Time `json:"prevRun,omitempty"`
	LastError string     `json:"lastError,omitempty"`
}

type LaneStatsResponse struct {
	Lane         string `json:"lane"`
	Enqueued     int64  `json:"enqueued"`
	Succeeded    int64  `json:"succeeded"`
	Retried      int64  `json:"retried"`
	DeadLettered int64  `json:"deadLettered"`
	Duplicates   int64  `json:"duplicates"`
}

type QueueStatsResponse struct {
	Lanes           []LaneStatsResponse `json:"lanes"`
	DeadLetterTotal int64               `json:"deadLetterTotal"`
}
