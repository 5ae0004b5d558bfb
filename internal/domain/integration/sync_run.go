package integration

import (
	"time"

	"github.com/google/uuid"
)

// SyncRunStatus is the outcome recorded for a sync driver run
type SyncRunStatus string

const (
	SyncRunStatusSuccess SyncRunStatus = "SUCCESS"
	SyncRunStatusFailed  SyncRunStatus = "FAILED"
)

// SyncRun is one append-only entry of the sync log. It is never updated after insertion.
type SyncRun struct {
	ID         uuid.UUID
	RunType    SyncMode
	StartedAt  time.Time
	FinishedAt time.Time
	Status     SyncRunStatus
	Detail     string
}

// NewSyncRun builds a finished run record
func NewSyncRun(mode SyncMode, startedAt, finishedAt time.Time, status SyncRunStatus, detail string) *SyncRun {
	return &SyncRun{
		ID:         uuid.New(),
		RunType:    mode,
		StartedAt:  startedAt.UTC(),
		FinishedAt: finishedAt.UTC(),
		Status:     status,
		Detail:     detail,
	}
}

// Duration returns how long the run took
func (r *SyncRun) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
