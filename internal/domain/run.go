package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrRunNotFound is returned by stores when no run exists for the given id.
var ErrRunNotFound = errors.New("run not found")

type RunStatus string

const (
	RunStatusPending      RunStatus = "pending"
	RunStatusProvisioning RunStatus = "provisioning"
	RunStatusExecuting    RunStatus = "executing"
	RunStatusSucceeded    RunStatus = "succeeded"
	RunStatusFailed       RunStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s RunStatus) Terminal() bool {
	return s == RunStatusSucceeded || s == RunStatusFailed
}

// Run records one execution cycle of the job, from trigger to terminal status.
// Runs are independent: nothing in a Run carries over to the next one.
type Run struct {
	ID uuid.UUID

	Trigger     TriggerKind
	ScheduledAt time.Time // intended fire time (UTC); zero for manual runs

	Status  RunStatus
	Failure FailureKind

	// ExitCode is the script's exit code. Meaningful only once the run
	// reached the executing state; -1 until then.
	ExitCode int
	Error    string

	StartedAt  time.Time
	FinishedAt time.Time
	CreatedAt  time.Time
}
