package integration

import (
	"fmt"
	"time"
)

// SyncMode selects how a sync driver run computes its window
type SyncMode string

const (
	// SyncModeIncremental derives the window from the smart watermark
	SyncModeIncremental SyncMode = "incremental"
	// SyncModeRange uses an explicit window filtered on last-update date
	SyncModeRange SyncMode = "range"
	// SyncModeBackfill uses an explicit window filtered on purchase date
	SyncModeBackfill SyncMode = "backfill"
)

// IsValid returns true if the mode is known
func (m SyncMode) IsValid() bool {
	switch m {
	case SyncModeIncremental, SyncModeRange, SyncModeBackfill:
		return true
	default:
		return false
	}
}

// String returns the string representation of SyncMode
func (m SyncMode) String() string {
	return string(m)
}

// DateField returns which order timestamp the remote filter applies to
func (m SyncMode) DateField() DateField {
	if m == SyncModeBackfill {
		return DateFieldPurchase
	}
	return DateFieldLastUpdate
}

// SyncTrigger records what started a run
type SyncTrigger string

const (
	SyncTriggerScheduled SyncTrigger = "scheduled"
	SyncTriggerManual    SyncTrigger = "manual"
	SyncTriggerCLI       SyncTrigger = "cli"
)

// TimeRange is a half-open [Start, End) window in UTC
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Validate checks the range is well formed
func (r TimeRange) Validate() error {
	if r.Start.IsZero() || r.End.IsZero() {
		return fmt.Errorf("%w: start and end are required", ErrInvalidSyncOptions)
	}
	if !r.Start.Before(r.End) {
		return fmt.Errorf("%w: start must be before end", ErrInvalidSyncOptions)
	}
	return nil
}

// SyncOptions configures one sync driver run
type SyncOptions struct {
	Mode    SyncMode
	Range   *TimeRange
	Trigger SyncTrigger
}

// Validate checks mode/range consistency. Incremental runs ignore Range.
func (o SyncOptions) Validate() error {
	if o.Mode == "" {
		o.Mode = SyncModeIncremental
	}
	if !o.Mode.IsValid() {
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidSyncOptions, o.Mode)
	}
	if o.Mode == SyncModeIncremental {
		return nil
	}
	if o.Range == nil {
		return fmt.Errorf("%w: mode %s requires a range", ErrInvalidSyncOptions, o.Mode)
	}
	return o.Range.Validate()
}

// EffectiveTrigger returns the trigger, manual when unset
func (o SyncOptions) EffectiveTrigger() SyncTrigger {
	if o.Trigger == "" {
		return SyncTriggerManual
	}
	return o.Trigger
}

// EffectiveMode returns the mode with the incremental default applied
func (o SyncOptions) EffectiveMode() SyncMode {
	if o.Mode == "" {
		return SyncModeIncremental
	}
	return o.Mode
}
