package domain

import (
	"time"

	"github.com/google/uuid"
)

type TriggerKind string

const (
	TriggerKindSchedule TriggerKind = "schedule"
	TriggerKindManual   TriggerKind = "manual"
)

// TriggerEvent is emitted when a run should start, either because the
// calendar matched or because a manual trigger was requested.
type TriggerEvent struct {
	RunID uuid.UUID
	Kind  TriggerKind

	ScheduledAt    time.Time // intended fire time (UTC); zero for manual
	FiredAt        time.Time // actual emission time
	IdempotencyKey string

	CreatedAt time.Time
}
