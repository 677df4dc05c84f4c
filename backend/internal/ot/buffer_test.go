package ot

import "testing"

func TestTextBuffer_BasicString(t *testing.T) {
	b := NewTextBuffer("Hello world")
	if got := b.String(); got != "Hello world" {
		t.Fatalf("String() = %q, want %q", got, "Hello world")
	}
	if got := b.Len(); got != len([]rune("Hello world")) {
		t.Fatalf("Len() = %d, want %d", got, len([]rune("Hello world")))
	}
}

func TestTextBuffer_InsertMiddle(t *testing.T) {
	b := NewTextBuffer("Hello world")
	b.Apply(Operation{Type: TypeInsert, Position: 5, Content: " collaborative"})

	want := "Hello collaborative world"
	if got := b.String(); got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}

func TestTextBuffer_DeleteMiddle(t *testing.T) {
	b := NewTextBuffer("Hello collaborative world")
	b.Apply(Operation{Type: TypeDelete, Position: 5, Length: 14})

	want := "Hello world"
	if got := b.String(); got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}

func TestTextBuffer_InsertIntoEmpty(t *testing.T) {
	b := NewTextBuffer("")
	b.Apply(Operation{Type: TypeInsert, Position: 0, Content: "Hi"})
	if got := b.String(); got != "Hi" {
		t.Fatalf("String() = %q, want %q", got, "Hi")
	}
}

func TestTextBuffer_ClampsOutOfRange(t *testing.T) {
	b := NewTextBuffer("abc")
	b.Apply(Operation{Type: TypeInsert, Position: 99, Content: "!"})
	if got := b.String(); got != "abc!" {
		t.Fatalf("String() = %q, want %q", got, "abc!")
	}
	b.Apply(Operation{Type: TypeDelete, Position: 2, Length: 99})
	if got := b.String(); got != "ab" {
		t.Fatalf("String() = %q, want %q", got, "ab")
	}
}

func TestTextBuffer_UpdateAndRetainIgnored(t *testing.T) {
	b := NewTextBuffer("abc")
	b.Apply(Operation{Type: TypeUpdate, Path: "slides.0.title", Content: map[string]any{"x": 1}})
	b.Apply(Operation{Type: TypeRetain, Length: 2})
	if got := b.String(); got != "abc" {
		t.Fatalf("String() = %q, want %q", got, "abc")
	}
}

// Two devices insert at the same position; replaying the accepted order on
// fresh buffers must converge to the same text.
func TestTextBuffer_ReplayConverges(t *testing.T) {
	accepted := []Operation{
		{Type: TypeInsert, Position: 0, Content: "Hello world", Length: 11, Sequence: 1},
		{Type: TypeInsert, Position: 5, Length: 1, Content: "X", Sequence: 2},
		// dev-b's insert at 5 was rebased to 6 by the accepted insert above
		{Type: TypeInsert, Position: 6, Length: 1, Content: "Y", Sequence: 3},
	}

	first := NewTextBuffer("")
	second := NewTextBuffer("")
	for _, op := range accepted {
		first.Apply(op)
	}
	for _, op := range accepted {
		second.Apply(op)
	}

	if first.String() != second.String() {
		t.Fatalf("replay diverged: %q vs %q", first.String(), second.String())
	}
	if got := first.String(); got != "HelloXY world" {
		t.Fatalf("String() = %q, want %q", got, "HelloXY world")
	}
}
