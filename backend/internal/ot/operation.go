package ot

import "time"

type Type string

const (
	TypeInsert Type = "insert"
	TypeDelete Type = "delete"
	TypeRetain Type = "retain"
	TypeUpdate Type = "update"
)

// Operation is the atomic unit of change for a project.
// The id is assigned client-side before submission and is used to drop
// redelivered operations idempotently. Sequence stays 0 until the server
// accepts the operation; once assigned it never changes.
type Operation struct {
	ID       string `json:"id"`
	Type     Type   `json:"type"`
	Position int    `json:"position,omitempty"`
	Length   int    `json:"length,omitempty"`
	// Path addresses a logical field for update operations, e.g.
	// "slides.3.title". Two updates conflict only when their paths match.
	Path      string    `json:"path,omitempty"`
	Content   any       `json:"content,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
	// OriginDeviceID is the device that authored the operation. The server
	// overwrites it on submission, clients cannot spoof another device.
	OriginDeviceID string `json:"originDeviceId,omitempty"`
	Sequence       uint64 `json:"sequence,omitempty"`
}

// spanLen is the number of positions an operation covers. Operations that
// carry no explicit length count as a single position.
func spanLen(op Operation) int {
	if op.Length > 0 {
		return op.Length
	}
	return 1
}
