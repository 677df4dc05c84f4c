package collab

import (
	"time"

	"slideSync/backend/internal/ot"
)

// OpsAppliedEvent is published to Kafka after a batch is accepted, keyed by
// project id so downstream consumers see each project's events in order.
type OpsAppliedEvent struct {
	EventType     string         `json:"eventType"` // "OPS_APPLIED" or "CONFLICT_RESOLVED"
	ProjectID     string         `json:"projectId"`
	DeviceID      string         `json:"deviceId"`
	BaseVersion   uint64         `json:"baseVersion"`
	ServerVersion uint64         `json:"serverVersion"`
	Operations    []ot.Operation `json:"operations"`
	AppliedAt     time.Time      `json:"appliedAt"`
}
