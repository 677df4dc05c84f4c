package collab

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"slideSync/backend/internal/ot"
)

// projState is the per-project serialization point. Its mutex is held across
// rebase, sequencing and persistence; broadcast happens after release.
type projState struct {
	mu      sync.Mutex
	loaded  bool
	version uint64
	// partial is set when the log has a pruned prefix no snapshot covers;
	// sequencing keeps working but content cannot be materialized.
	partial bool
	// seen maps ids of accepted operations to their sequence so redelivered
	// batches are dropped instead of double-applied. Prune trims it along
	// with the log: the dedupe window is the retention window.
	seen map[string]uint64
	buf  *ot.TextBuffer
}

// Engine implements Service on top of an OpLog. Different projects proceed
// fully in parallel; submissions for the same project serialize end-to-end.
type Engine struct {
	mu    sync.RWMutex
	projs map[string]*projState

	log        OpLog
	snapshots  SnapshotStore
	dispatcher *KafkaDispatcher
}

func NewEngine(log OpLog, snapshots SnapshotStore, dispatcher *KafkaDispatcher) *Engine {
	return &Engine{
		projs:      make(map[string]*projState),
		log:        log,
		snapshots:  snapshots,
		dispatcher: dispatcher,
	}
}

func (e *Engine) getOrCreateProj(projectID string) *projState {
	e.mu.RLock()
	ps := e.projs[projectID]
	e.mu.RUnlock()
	if ps != nil {
		return ps
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if ps = e.projs[projectID]; ps == nil {
		ps = &projState{
			seen: make(map[string]uint64),
			buf:  ot.NewTextBuffer(""),
		}
		e.projs[projectID] = ps
	}
	return ps
}

// load initializes project state on first touch after (re)start: the text
// buffer is seeded from the latest snapshot, the operations accepted after it
// are replayed on top, and the version picks up at the highest persisted
// sequence. Caller holds ps.mu.
func (e *Engine) load(ctx context.Context, projectID string, ps *projState) error {
	if ps.loaded {
		return nil
	}
	var base uint64
	if e.snapshots != nil {
		content, v, err := e.snapshots.LatestProjectSnapshot(ctx, projectID)
		if err != nil {
			return err
		}
		if v > 0 {
			ps.buf = ot.NewTextBuffer(content)
			base = v
		}
	}
	ops, err := e.log.Since(ctx, projectID, base)
	if err != nil {
		return err
	}
	// a pruned prefix no snapshot covers cannot be replayed; replaying the
	// tail alone would land every surviving position in the wrong place
	if len(ops) > 0 && ops[0].Sequence != base+1 {
		ps.partial = true
	}
	for _, op := range ops {
		if op.ID != "" {
			ps.seen[op.ID] = op.Sequence
		}
		if !ps.partial {
			ps.buf.Apply(op)
		}
	}
	v, err := e.log.CurrentVersion(ctx, projectID)
	if err != nil {
		return err
	}
	ps.version = v
	ps.loaded = true
	return nil
}

func (e *Engine) Submit(ctx context.Context, projectID, deviceID string, baseVersion uint64, ops []ot.Operation) (SubmitResult, error) {
	if len(ops) == 0 {
		return SubmitResult{}, ErrEmptyBatch
	}

	ps := e.getOrCreateProj(projectID)
	ps.mu.Lock()
	if err := e.load(ctx, projectID, ps); err != nil {
		ps.mu.Unlock()
		return SubmitResult{}, err
	}

	// Drop redelivered operations; the device gets the same ack again.
	fresh := make([]ot.Operation, 0, len(ops))
	for _, op := range ops {
		if op.ID != "" {
			if _, dup := ps.seen[op.ID]; dup {
				continue
			}
		}
		op.OriginDeviceID = deviceID
		fresh = append(fresh, op)
	}
	if len(fresh) == 0 {
		v := ps.version
		ps.mu.Unlock()
		return SubmitResult{ServerVersion: v}, nil
	}

	serverOps, err := e.log.Since(ctx, projectID, baseVersion)
	if err != nil {
		ps.mu.Unlock()
		return SubmitResult{}, err
	}
	var conflicts []ot.Operation
	for _, sop := range serverOps {
		if sop.OriginDeviceID != deviceID {
			conflicts = append(conflicts, sop)
		}
	}

	rebased := ot.Rebase(fresh, serverOps)

	// Sequence assignment and persistence are one unit; on failure no
	// sequence numbers are consumed and no local state has changed, so the
	// device may retry with the same base version.
	accepted, err := e.log.Append(ctx, projectID, rebased)
	if err != nil {
		ps.mu.Unlock()
		return SubmitResult{}, err
	}

	for _, op := range accepted {
		if op.ID != "" {
			ps.seen[op.ID] = op.Sequence
		}
		if !ps.partial {
			ps.buf.Apply(op)
		}
	}
	ps.version = accepted[len(accepted)-1].Sequence
	serverVersion := ps.version
	ps.mu.Unlock()

	if e.dispatcher != nil {
		evt := OpsAppliedEvent{
			EventType:     "OPS_APPLIED",
			ProjectID:     projectID,
			DeviceID:      deviceID,
			BaseVersion:   baseVersion,
			ServerVersion: serverVersion,
			Operations:    accepted,
			AppliedAt:     time.Now(),
		}
		// Best-effort event stream: a full queue must not stall submission.
		enqCtx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		_ = e.dispatcher.Enqueue(enqCtx, evt)
		cancel()
	}

	return SubmitResult{
		Applied:       accepted,
		Conflicts:     conflicts,
		ServerVersion: serverVersion,
	}, nil
}

func (e *Engine) CurrentVersion(ctx context.Context, projectID string) (uint64, error) {
	ps := e.getOrCreateProj(projectID)
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if err := e.load(ctx, projectID, ps); err != nil {
		return 0, err
	}
	return ps.version, nil
}

func (e *Engine) OpsSince(ctx context.Context, projectID string, fromVersion uint64) ([]ot.Operation, uint64, error) {
	ps := e.getOrCreateProj(projectID)
	ps.mu.Lock()
	if err := e.load(ctx, projectID, ps); err != nil {
		ps.mu.Unlock()
		return nil, 0, err
	}
	v := ps.version
	ps.mu.Unlock()

	ops, err := e.log.Since(ctx, projectID, fromVersion)
	if err != nil {
		return nil, 0, err
	}
	return ops, v, nil
}

func (e *Engine) ResolveConflict(ctx context.Context, projectID, deviceID, strategy string, resolvedContent any) (ot.Operation, uint64, error) {
	switch strategy {
	case StrategyLastWriteWins, StrategyMerge:
		// Both are already the rebase rules' behavior; nothing to append.
		v, err := e.CurrentVersion(ctx, projectID)
		return ot.Operation{}, v, err

	case StrategyManual:
		if resolvedContent == nil {
			return ot.Operation{}, 0, ErrMissingResolvedContent
		}
		v, err := e.CurrentVersion(ctx, projectID)
		if err != nil {
			return ot.Operation{}, 0, err
		}
		op := ot.Operation{
			ID:        uuid.NewString(),
			Type:      ot.TypeUpdate,
			Content:   resolvedContent,
			Timestamp: time.Now(),
		}
		res, err := e.Submit(ctx, projectID, ServerDeviceID, v, []ot.Operation{op})
		if err != nil {
			return ot.Operation{}, 0, err
		}
		return res.Applied[0], res.ServerVersion, nil

	default:
		return ot.Operation{}, 0, ErrUnknownStrategy
	}
}

func (e *Engine) ProjectContent(ctx context.Context, projectID string) (string, uint64, error) {
	ps := e.getOrCreateProj(projectID)
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if err := e.load(ctx, projectID, ps); err != nil {
		return "", 0, err
	}
	if ps.version == 0 {
		return "", 0, ErrProjectNotFound
	}
	if ps.partial {
		return "", 0, ErrContentUnavailable
	}
	return ps.buf.String(), ps.version, nil
}

func (e *Engine) SaveSnapshot(ctx context.Context, projectID string) error {
	if e.snapshots == nil {
		return nil
	}
	content, version, err := e.ProjectContent(ctx, projectID)
	if err != nil {
		return err
	}
	return e.snapshots.SaveProjectSnapshot(ctx, projectID, version, content)
}

func (e *Engine) Prune(ctx context.Context, projectID string, keepLastN uint64) error {
	if err := e.log.Prune(ctx, projectID, keepLastN); err != nil {
		return err
	}

	// trim the dedupe set with the log, or long-lived projects would grow
	// one entry per operation ever accepted
	e.mu.RLock()
	ps := e.projs[projectID]
	e.mu.RUnlock()
	if ps == nil {
		return nil
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if !ps.loaded || ps.version <= keepLastN {
		return nil
	}
	cutoff := ps.version - keepLastN
	for id, seq := range ps.seen {
		if seq < cutoff {
			delete(ps.seen, id)
		}
	}
	return nil
}

func (e *Engine) Projects(ctx context.Context) ([]string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.projs))
	for id := range e.projs {
		out = append(out, id)
	}
	return out, nil
}
