package oplog

import (
	"context"
	"sync"
	"testing"

	"slideSync/backend/internal/ot"
)

func TestMemoryLog_AppendAssignsSequences(t *testing.T) {
	l := NewMemoryLog()
	ctx := context.Background()

	accepted, err := l.Append(ctx, "p1", []ot.Operation{
		{ID: "a", Type: ot.TypeInsert, Content: "x"},
		{ID: "b", Type: ot.TypeInsert, Content: "y"},
	})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if accepted[0].Sequence != 1 || accepted[1].Sequence != 2 {
		t.Fatalf("sequences = %d, %d, want 1, 2", accepted[0].Sequence, accepted[1].Sequence)
	}

	v, err := l.CurrentVersion(ctx, "p1")
	if err != nil {
		t.Fatalf("CurrentVersion() error = %v", err)
	}
	if v != 2 {
		t.Fatalf("CurrentVersion() = %d, want 2", v)
	}
}

func TestMemoryLog_ConcurrentAppendsAreMonotonic(t *testing.T) {
	l := NewMemoryLog()
	ctx := context.Background()

	const n = 64
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			if _, err := l.Append(ctx, "p1", []ot.Operation{{Type: ot.TypeInsert, Content: "x"}}); err != nil {
				t.Errorf("Append() error = %v", err)
			}
		}()
	}
	wg.Wait()

	ops, err := l.Since(ctx, "p1", 0)
	if err != nil {
		t.Fatalf("Since() error = %v", err)
	}
	if len(ops) != n {
		t.Fatalf("len(ops) = %d, want %d", len(ops), n)
	}
	seen := make(map[uint64]bool, n)
	prev := uint64(0)
	for _, op := range ops {
		if op.Sequence <= prev {
			t.Fatalf("sequence %d not strictly increasing after %d", op.Sequence, prev)
		}
		if seen[op.Sequence] {
			t.Fatalf("duplicate sequence %d", op.Sequence)
		}
		seen[op.Sequence] = true
		prev = op.Sequence
	}
}

func TestMemoryLog_SinceIsIdempotent(t *testing.T) {
	l := NewMemoryLog()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := l.Append(ctx, "p1", []ot.Operation{{Type: ot.TypeInsert, Content: "x"}}); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	first, err := l.Since(ctx, "p1", 2)
	if err != nil {
		t.Fatalf("Since() error = %v", err)
	}
	second, err := l.Since(ctx, "p1", 2)
	if err != nil {
		t.Fatalf("Since() error = %v", err)
	}
	if len(first) != 3 || len(second) != 3 {
		t.Fatalf("len = %d, %d, want 3, 3", len(first), len(second))
	}
	for i := range first {
		if first[i].Sequence != second[i].Sequence {
			t.Fatalf("result changed between identical calls: %d vs %d", first[i].Sequence, second[i].Sequence)
		}
	}
}

func TestMemoryLog_PruneKeepsRecent(t *testing.T) {
	l := NewMemoryLog()
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if _, err := l.Append(ctx, "p1", []ot.Operation{{Type: ot.TypeInsert, Content: "x"}}); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}
	if err := l.Prune(ctx, "p1", 3); err != nil {
		t.Fatalf("Prune() error = %v", err)
	}

	ops, err := l.Since(ctx, "p1", 0)
	if err != nil {
		t.Fatalf("Since() error = %v", err)
	}
	// cutoff is version-keepLastN = 7; sequences 7..10 survive
	if len(ops) != 4 {
		t.Fatalf("len(ops) = %d, want 4", len(ops))
	}
	if ops[0].Sequence != 7 {
		t.Fatalf("first surviving sequence = %d, want 7", ops[0].Sequence)
	}

	v, err := l.CurrentVersion(ctx, "p1")
	if err != nil {
		t.Fatalf("CurrentVersion() error = %v", err)
	}
	if v != 10 {
		t.Fatalf("CurrentVersion() = %d, want 10 (prune never lowers the version)", v)
	}
}

func TestMemoryLog_UnknownProject(t *testing.T) {
	l := NewMemoryLog()
	ctx := context.Background()

	ops, err := l.Since(ctx, "missing", 0)
	if err != nil {
		t.Fatalf("Since() error = %v", err)
	}
	if len(ops) != 0 {
		t.Fatalf("len(ops) = %d, want 0", len(ops))
	}
	v, err := l.CurrentVersion(ctx, "missing")
	if err != nil {
		t.Fatalf("CurrentVersion() error = %v", err)
	}
	if v != 0 {
		t.Fatalf("CurrentVersion() = %d, want 0", v)
	}
}
