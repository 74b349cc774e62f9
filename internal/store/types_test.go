package store

import "testing"

func TestCursorLess(t *testing.T) {
	cases := []struct {
		name string
		a, b Cursor
		want bool
	}{
		{"lower block", Cursor{BlockNumber: 1, EventIndex: 5}, Cursor{BlockNumber: 2, EventIndex: 0}, true},
		{"same block lower index", Cursor{BlockNumber: 5, EventIndex: 1}, Cursor{BlockNumber: 5, EventIndex: 2}, true},
		{"equal", Cursor{BlockNumber: 5, EventIndex: 1}, Cursor{BlockNumber: 5, EventIndex: 1}, false},
		{"higher block", Cursor{BlockNumber: 9, EventIndex: 0}, Cursor{BlockNumber: 8, EventIndex: 999}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.a.Less(tc.b); got != tc.want {
				t.Errorf("(%+v).Less(%+v) = %v, want %v", tc.a, tc.b, got, tc.want)
			}
		})
	}
}

func TestOutboxStatusTerminal(t *testing.T) {
	terminal := []OutboxStatus{OutboxFinalized, OutboxDead}
	nonTerminal := []OutboxStatus{OutboxPending, OutboxFailed}

	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("status %q: want terminal", s)
		}
	}
	for _, s := range nonTerminal {
		if s.Terminal() {
			t.Errorf("status %q: want non-terminal", s)
		}
	}
}
