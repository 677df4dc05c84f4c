package ws

import (
	"slideSync/backend/internal/ot"
)

// ClientMessage is the union of everything a device may send. Type selects
// which fields matter.
type ClientMessage struct {
	Type string `json:"type"`

	// register
	UserID     string `json:"userId,omitempty"`
	DeviceID   string `json:"deviceId,omitempty"`
	Platform   string `json:"platform,omitempty"`
	DeviceName string `json:"deviceName,omitempty"`

	// joinProject
	ProjectID      string `json:"projectId,omitempty"`
	CurrentVersion uint64 `json:"currentVersion,omitempty"`

	// operations
	Operations  []ot.Operation `json:"operations,omitempty"`
	BaseVersion uint64         `json:"baseVersion,omitempty"`

	// requestSync
	SinceVersion uint64 `json:"sinceVersion,omitempty"`

	// resolveConflict
	Strategy        string `json:"strategy,omitempty"`
	ResolvedContent any    `json:"resolvedContent,omitempty"`

	// presence
	Cursor    any `json:"cursor,omitempty"`
	Selection any `json:"selection,omitempty"`
}

type DeviceInfo struct {
	DeviceID   string `json:"deviceId"`
	UserID     string `json:"userId"`
	Platform   string `json:"platform,omitempty"`
	DeviceName string `json:"deviceName,omitempty"`
	Online     bool   `json:"online"`
}

// OutboundMessage is anything the server can enqueue for delivery.
type OutboundMessage interface {
	MessageType() string
}

type RegisteredMessage struct {
	Type   string     `json:"type"` // fixed "registered"
	Device DeviceInfo `json:"device"`
}

type JoinedMessage struct {
	Type    string `json:"type"` // fixed "joined"
	Project string `json:"project"`
	Version uint64 `json:"version"`
}

// SyncUpdateMessage delivers the catch-up stream, both on join with a stale
// version and in reply to requestSync.
type SyncUpdateMessage struct {
	Type          string         `json:"type"` // fixed "syncUpdate"
	Operations    []ot.Operation `json:"operations"`
	ServerVersion uint64         `json:"serverVersion"`
}

type OperationsAckMessage struct {
	Type          string         `json:"type"` // fixed "operationsAck"
	Applied       []ot.Operation `json:"applied"`
	ServerVersion uint64         `json:"serverVersion"`
}

// RemoteOperationsMessage pushes an accepted batch to every other device
// joined to the project.
type RemoteOperationsMessage struct {
	Type          string         `json:"type"` // fixed "remoteOperations"
	Operations    []ot.Operation `json:"operations"`
	FromDevice    string         `json:"fromDevice"`
	ServerVersion uint64         `json:"serverVersion"`
}

// ConflictsMessage tells the submitter which already-accepted foreign
// operations its batch was rebased against.
type ConflictsMessage struct {
	Type        string         `json:"type"` // fixed "conflicts"
	Conflicting []ot.Operation `json:"conflicting"`
	Applied     []ot.Operation `json:"applied"`
}

type ConflictResolvedMessage struct {
	Type       string `json:"type"` // fixed "conflictResolved"
	ResolvedBy string `json:"resolvedBy"`
	Version    uint64 `json:"version"`
	Content    any    `json:"content,omitempty"`
}

type PresenceMessage struct {
	Type      string `json:"type"` // fixed "presence"
	DeviceID  string `json:"deviceId"`
	Cursor    any    `json:"cursor,omitempty"`
	Selection any    `json:"selection,omitempty"`
}

type DeviceOfflineMessage struct {
	Type     string `json:"type"` // fixed "deviceOffline"
	DeviceID string `json:"deviceId"`
}

// ErrorMessage goes to the offending connection only, never broadcast.
type ErrorMessage struct {
	Type    string `json:"type"` // fixed "error"
	Message string `json:"message"`
}

func (m RegisteredMessage) MessageType() string       { return m.Type }
func (m JoinedMessage) MessageType() string           { return m.Type }
func (m SyncUpdateMessage) MessageType() string       { return m.Type }
func (m OperationsAckMessage) MessageType() string    { return m.Type }
func (m RemoteOperationsMessage) MessageType() string { return m.Type }
func (m ConflictsMessage) MessageType() string        { return m.Type }
func (m ConflictResolvedMessage) MessageType() string { return m.Type }
func (m PresenceMessage) MessageType() string         { return m.Type }
func (m DeviceOfflineMessage) MessageType() string    { return m.Type }
func (m ErrorMessage) MessageType() string            { return m.Type }
