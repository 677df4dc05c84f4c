package ot

type bufferKind int

const (
	bufOriginal bufferKind = iota
	bufAdd
)

type piece struct {
	buf    bufferKind
	offset int
	length int
}

// TextBuffer is a piece-table over rune slices. Accepted insert/delete
// operations are replayed into it to materialize the text content of a
// project; update/retain operations leave it untouched. The original and
// add buffers are append-only, edits only rearrange the piece list.
type TextBuffer struct {
	original []rune
	add      []rune
	pieces   []piece
}

func NewTextBuffer(initial string) *TextBuffer {
	r := []rune(initial)
	return &TextBuffer{
		original: r,
		pieces:   []piece{{buf: bufOriginal, offset: 0, length: len(r)}},
	}
}

func (b *TextBuffer) Len() int {
	n := 0
	for _, p := range b.pieces {
		n += p.length
	}
	return n
}

func (b *TextBuffer) String() string {
	out := make([]rune, 0, b.Len())
	for _, p := range b.pieces {
		switch p.buf {
		case bufOriginal:
			out = append(out, b.original[p.offset:p.offset+p.length]...)
		case bufAdd:
			out = append(out, b.add[p.offset:p.offset+p.length]...)
		}
	}
	return string(out)
}

// Apply replays one accepted operation. Positions beyond the current end are
// clamped rather than rejected, so replaying a valid log never fails.
func (b *TextBuffer) Apply(op Operation) {
	switch op.Type {
	case TypeInsert:
		text, ok := op.Content.(string)
		if !ok || text == "" {
			return
		}
		b.insertAt(b.clamp(op.Position), text)
	case TypeDelete:
		count := op.Length
		if count <= 0 {
			count = 1
		}
		b.deleteAt(b.clamp(op.Position), count)
	}
}

func (b *TextBuffer) clamp(pos int) int {
	if pos < 0 {
		return 0
	}
	if n := b.Len(); pos > n {
		return n
	}
	return pos
}

func (b *TextBuffer) insertAt(pos int, text string) {
	runes := []rune(text)
	start := len(b.add)
	b.add = append(b.add, runes...)
	ins := piece{buf: bufAdd, offset: start, length: len(runes)}

	idx, offset := b.locate(pos)
	if idx >= len(b.pieces) {
		b.pieces = append(b.pieces, ins)
		return
	}

	cur := b.pieces[idx]
	left := piece{buf: cur.buf, offset: cur.offset, length: offset}
	right := piece{buf: cur.buf, offset: cur.offset + offset, length: cur.length - offset}

	next := make([]piece, 0, len(b.pieces)+2)
	next = append(next, b.pieces[:idx]...)
	if left.length > 0 {
		next = append(next, left)
	}
	next = append(next, ins)
	if right.length > 0 {
		next = append(next, right)
	}
	next = append(next, b.pieces[idx+1:]...)
	b.pieces = next
}

func (b *TextBuffer) deleteAt(pos, count int) {
	remain := count
	idx, offset := b.locate(pos)

	for remain > 0 && idx < len(b.pieces) {
		cur := &b.pieces[idx]
		can := cur.length - offset
		if can <= 0 {
			idx++
			offset = 0
			continue
		}

		take := remain
		if take > can {
			take = can
		}

		if offset == 0 && take == cur.length {
			// whole piece gone; idx now holds the following piece
			b.pieces = append(b.pieces[:idx], b.pieces[idx+1:]...)
		} else {
			leftLen := offset
			rightLen := cur.length - offset - take

			next := make([]piece, 0, len(b.pieces)+1)
			next = append(next, b.pieces[:idx]...)
			if leftLen > 0 {
				next = append(next, piece{buf: cur.buf, offset: cur.offset, length: leftLen})
			}
			if rightLen > 0 {
				next = append(next, piece{buf: cur.buf, offset: cur.offset + offset + take, length: rightLen})
			}
			next = append(next, b.pieces[idx+1:]...)
			b.pieces = next
		}

		remain -= take
	}
}

// locate maps a logical position to a piece index and an offset inside it.
func (b *TextBuffer) locate(pos int) (idx, offset int) {
	cur := 0
	for i, p := range b.pieces {
		if pos <= cur+p.length {
			return i, pos - cur
		}
		cur += p.length
	}
	return len(b.pieces), 0
}
