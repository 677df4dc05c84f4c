package ot

// Rebase adjusts a batch of client operations against every server operation
// accepted since the client's base version. Server operations authored by the
// same device are skipped: a device never rebases against its own history.
// Adjustments are pairwise and cumulative in server-acceptance order; the
// result keeps the client's submission order.
func Rebase(clientOps, serverOps []Operation) []Operation {
	out := make([]Operation, len(clientOps))
	for i, cop := range clientOps {
		for _, sop := range serverOps {
			if sop.OriginDeviceID == cop.OriginDeviceID {
				continue
			}
			cop = transformAgainst(cop, sop)
		}
		out[i] = cop
	}
	return out
}

func transformAgainst(c, s Operation) Operation {
	switch {
	case (c.Type == TypeInsert || c.Type == TypeDelete) && s.Type == TypeInsert:
		// Text inserted at or before the client's position pushes it right.
		if s.Position <= c.Position {
			c.Position += spanLen(s)
		}

	case c.Type == TypeInsert && s.Type == TypeDelete:
		// Text deleted before the client's position pulls it left, but never
		// past the start of the deleted range.
		if s.Position < c.Position {
			c.Position -= spanLen(s)
			if c.Position < s.Position {
				c.Position = s.Position
			}
		}

	case c.Type == TypeUpdate && s.Type == TypeUpdate:
		if c.Path == "" || c.Path != s.Path {
			break
		}
		// Same field from two devices: later timestamp wins verbatim, the
		// earlier one is folded into a field-level merge.
		if !c.Timestamp.After(s.Timestamp) {
			c.Content = MergeContent(s.Content, c.Content)
		}
	}
	return c
}

// MergeContent merges two update payloads field by field, client fields
// overwriting server fields on key collision. Non-object content cannot be
// merged and falls back to the client value.
func MergeContent(server, client any) any {
	sm, sok := server.(map[string]any)
	cm, cok := client.(map[string]any)
	if !sok || !cok {
		return client
	}
	merged := make(map[string]any, len(sm)+len(cm))
	for k, v := range sm {
		merged[k] = v
	}
	for k, v := range cm {
		merged[k] = v
	}
	return merged
}
