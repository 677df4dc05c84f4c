package oplog

import (
	"context"
	"sync"

	"slideSync/backend/internal/ot"
)

// MemoryLog is an in-process operation log. Each project holds its own lock,
// so appends for different projects proceed in parallel while appends for the
// same project serialize. Sequence assignment and the append itself happen
// under one lock acquisition: a reader can never observe a sequenced but
// unpersisted operation.
//
// Valid as the authority only while exactly one server process serves the
// project; the MySQL store is the cross-process option.
type MemoryLog struct {
	mu   sync.RWMutex
	logs map[string]*projectLog
}

type projectLog struct {
	mu      sync.Mutex
	version uint64
	ops     []ot.Operation
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{logs: make(map[string]*projectLog)}
}

func (l *MemoryLog) getOrCreate(projectID string) *projectLog {
	l.mu.RLock()
	pl := l.logs[projectID]
	l.mu.RUnlock()
	if pl != nil {
		return pl
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if pl = l.logs[projectID]; pl == nil {
		pl = &projectLog{}
		l.logs[projectID] = pl
	}
	return pl
}

// Append assigns the next sequence numbers to ops and persists them as one
// unit. The input slice is not mutated; stamped copies are returned.
func (l *MemoryLog) Append(ctx context.Context, projectID string, ops []ot.Operation) ([]ot.Operation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pl := l.getOrCreate(projectID)
	pl.mu.Lock()
	defer pl.mu.Unlock()

	accepted := make([]ot.Operation, len(ops))
	for i, op := range ops {
		pl.version++
		op.Sequence = pl.version
		accepted[i] = op
	}
	pl.ops = append(pl.ops, accepted...)
	return accepted, nil
}

func (l *MemoryLog) Since(ctx context.Context, projectID string, version uint64) ([]ot.Operation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	pl := l.logs[projectID]
	l.mu.RUnlock()
	if pl == nil {
		return nil, nil
	}
	pl.mu.Lock()
	defer pl.mu.Unlock()

	var out []ot.Operation
	for _, op := range pl.ops {
		if op.Sequence > version {
			out = append(out, op)
		}
	}
	return out, nil
}

// Prune drops operations with sequence < version-keepLastN. Only strictly
// historical entries go away, so it is safe alongside concurrent reads.
func (l *MemoryLog) Prune(ctx context.Context, projectID string, keepLastN uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.RLock()
	pl := l.logs[projectID]
	l.mu.RUnlock()
	if pl == nil {
		return nil
	}
	pl.mu.Lock()
	defer pl.mu.Unlock()

	if pl.version <= keepLastN {
		return nil
	}
	cutoff := pl.version - keepLastN
	kept := pl.ops[:0]
	for _, op := range pl.ops {
		if op.Sequence >= cutoff {
			kept = append(kept, op)
		}
	}
	pl.ops = kept
	return nil
}

func (l *MemoryLog) CurrentVersion(ctx context.Context, projectID string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	l.mu.RLock()
	pl := l.logs[projectID]
	l.mu.RUnlock()
	if pl == nil {
		return 0, nil
	}
	pl.mu.Lock()
	defer pl.mu.Unlock()
	return pl.version, nil
}
