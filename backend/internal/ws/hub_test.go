package ws

import "testing"

func testConn() *Conn {
	return &Conn{send: make(chan OutboundMessage, 4)}
}

func drain(c *Conn) []OutboundMessage {
	var out []OutboundMessage
	for {
		select {
		case msg := <-c.send:
			out = append(out, msg)
		default:
			return out
		}
	}
}

func TestHub_BroadcastExceptSkipsSender(t *testing.T) {
	h := NewHub(nil)
	a, b, other := testConn(), testConn(), testConn()
	h.Join("proj-1", a)
	h.Join("proj-1", b)
	h.Join("proj-2", other)

	h.BroadcastExcept("proj-1", a, PresenceMessage{Type: "presence", DeviceID: "dev-a"})

	if got := drain(a); len(got) != 0 {
		t.Fatalf("sender received %d messages, want 0", len(got))
	}
	got := drain(b)
	if len(got) != 1 {
		t.Fatalf("room member received %d messages, want 1", len(got))
	}
	if got[0].MessageType() != "presence" {
		t.Fatalf("MessageType() = %q, want %q", got[0].MessageType(), "presence")
	}
	if got := drain(other); len(got) != 0 {
		t.Fatalf("other project received %d messages, want 0", len(got))
	}
}

func TestHub_BroadcastIncludesEveryone(t *testing.T) {
	h := NewHub(nil)
	a, b := testConn(), testConn()
	h.Join("proj-1", a)
	h.Join("proj-1", b)

	h.Broadcast("proj-1", ConflictResolvedMessage{Type: "conflictResolved", ResolvedBy: "dev-a", Version: 3})

	if len(drain(a)) != 1 || len(drain(b)) != 1 {
		t.Fatalf("broadcast must reach every room member")
	}
}

func TestHub_LeaveStopsDelivery(t *testing.T) {
	h := NewHub(nil)
	a, b := testConn(), testConn()
	h.Join("proj-1", a)
	h.Join("proj-1", b)
	h.Leave("proj-1", b)

	h.Broadcast("proj-1", JoinedMessage{Type: "joined", Project: "proj-1", Version: 1})

	if len(drain(b)) != 0 {
		t.Fatalf("left connection still received messages")
	}
	if len(drain(a)) != 1 {
		t.Fatalf("remaining connection missed the message")
	}
}

func TestHub_BroadcastSurvivesTornDownMember(t *testing.T) {
	h := NewHub(nil)
	a, b := testConn(), testConn()
	h.Join("proj-1", a)
	h.Join("proj-1", b)

	// a's outbound channel closes while it still sits in the room; delivery
	// to it must become a no-op, not a send on a closed channel
	a.closeSend()
	a.closeSend() // second close is a no-op

	h.Broadcast("proj-1", JoinedMessage{Type: "joined", Project: "proj-1", Version: 1})

	if len(drain(b)) != 1 {
		t.Fatalf("live connection missed the message")
	}
}

func TestConn_EnqueueDropsWhenFull(t *testing.T) {
	c := &Conn{send: make(chan OutboundMessage, 1)}
	c.Enqueue(ErrorMessage{Type: "error", Message: "first"})
	c.Enqueue(ErrorMessage{Type: "error", Message: "second"})

	got := drain(c)
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1 (overflow dropped, not blocking)", len(got))
	}
}
