package model

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to string
		want     bool
	}{
		{TicketStatusOpen, TicketStatusInProgress, true},
		{TicketStatusInProgress, TicketStatusResolved, true},
		{TicketStatusResolved, TicketStatusOpen, true},
		{TicketStatusResolved, TicketStatusClosed, true},
		{TicketStatusClosed, TicketStatusOpen, false},
		{TicketStatusClosed, TicketStatusClosed, true},
		{TicketStatusOpen, "archived", false},
	}

	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%q, %q) = %v, хотели %v", tt.from, tt.to, got, tt.want)
		}
	}
}
