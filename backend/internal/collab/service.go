package collab

import (
	"context"
	"errors"

	"slideSync/backend/internal/ot"
)

// ServerDeviceID is the sentinel origin for operations the server itself
// synthesizes during manual conflict resolution.
const ServerDeviceID = "server"

// Conflict resolution strategies.
const (
	StrategyLastWriteWins = "last-write-wins"
	StrategyMerge         = "merge"
	StrategyManual        = "manual"
)

var (
	ErrProjectNotFound        = errors.New("PROJECT_NOT_FOUND")
	ErrContentUnavailable     = errors.New("CONTENT_UNAVAILABLE")
	ErrEmptyBatch             = errors.New("EMPTY_BATCH")
	ErrUnknownStrategy        = errors.New("UNKNOWN_STRATEGY")
	ErrMissingResolvedContent = errors.New("MISSING_RESOLVED_CONTENT")
)

// Service is the synchronization engine: rebasing, sequencing, the operation
// log and conflict resolution for one logical authority per project.
type Service interface {
	// Submit rebases ops against everything accepted since baseVersion,
	// sequences and persists them, and reports the new version. The whole
	// batch is accepted or none of it is.
	Submit(ctx context.Context, projectID, deviceID string, baseVersion uint64, ops []ot.Operation) (SubmitResult, error)

	CurrentVersion(ctx context.Context, projectID string) (uint64, error)

	// OpsSince returns the catch-up stream after fromVersion plus the
	// current version, in acceptance order.
	OpsSince(ctx context.Context, projectID string, fromVersion uint64) ([]ot.Operation, uint64, error)

	// ResolveConflict applies an explicit strategy. Only "manual" appends a
	// new operation (attributed to ServerDeviceID); the other strategies are
	// already covered by the rebase rules and append nothing.
	ResolveConflict(ctx context.Context, projectID, deviceID, strategy string, resolvedContent any) (ot.Operation, uint64, error)

	// ProjectContent materializes the text produced by replaying the
	// accepted insert/delete operations.
	ProjectContent(ctx context.Context, projectID string) (string, uint64, error)

	SaveSnapshot(ctx context.Context, projectID string) error

	// Prune drops operations older than keepLastN behind the current
	// version. Maintenance only, never on the submit path.
	Prune(ctx context.Context, projectID string, keepLastN uint64) error

	// Projects lists project ids this process has state for.
	Projects(ctx context.Context) ([]string, error)
}

// SubmitResult is the outcome of one accepted batch.
type SubmitResult struct {
	// Applied holds the (possibly rebased) operations with sequences
	// assigned, in submission order. Empty when every operation in the
	// batch was a redelivered duplicate.
	Applied []ot.Operation
	// Conflicts lists the foreign server operations accepted since the
	// client's base version. Populated whenever any such operation exists,
	// whether or not ranges or paths actually overlapped.
	Conflicts     []ot.Operation
	ServerVersion uint64
}

// OpLog abstracts append-only persistence of accepted operations, keyed by
// monotonic sequence number. Implementations: oplog.MemoryLog (single
// process), store.OpLogStore (MySQL).
type OpLog interface {
	Append(ctx context.Context, projectID string, ops []ot.Operation) ([]ot.Operation, error)
	Since(ctx context.Context, projectID string, version uint64) ([]ot.Operation, error)
	Prune(ctx context.Context, projectID string, keepLastN uint64) error
	CurrentVersion(ctx context.Context, projectID string) (uint64, error)
}

// SnapshotStore persists materialized project content at a version. The
// latest snapshot is the replay baseline after a restart, so pruning the
// operation log below it loses nothing.
type SnapshotStore interface {
	SaveProjectSnapshot(ctx context.Context, projectID string, version uint64, content string) error
	// LatestProjectSnapshot returns the newest stored snapshot, or version 0
	// when the project has none.
	LatestProjectSnapshot(ctx context.Context, projectID string) (string, uint64, error)
}
