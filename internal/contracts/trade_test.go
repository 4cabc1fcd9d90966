package contracts

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to TradeStatus
		want     bool
	}{
		{StatusPending, StatusSubmitted, true},
		{StatusPending, StatusFilled, false},
		{StatusSubmitted, StatusAccepted, true},
		{StatusAccepted, StatusPartiallyFilled, true},
		{StatusPartiallyFilled, StatusFilled, true},
		{StatusPartiallyFilled, StatusSubmitted, false},
		{StatusFilled, StatusCancelled, false},
		{StatusRejected, StatusSubmitted, false},
	}

	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestTrade_Transition_RejectsTerminal(t *testing.T) {
	tr := &Trade{OrderID: "T1", Status: StatusFilled, RequestedQty: 10, ExecutedQty: 10}
	if err := tr.Transition(StatusCancelled); err == nil {
		t.Fatal("expected error transitioning out of a terminal state")
	}
}

func TestTrade_Transition_RejectsOverfill(t *testing.T) {
	tr := &Trade{OrderID: "T1", Status: StatusAccepted, RequestedQty: 10, ExecutedQty: 11}
	if err := tr.Transition(StatusFilled); err == nil {
		t.Fatal("expected error when executed quantity exceeds requested")
	}
}

func TestEntryOrderID_Format(t *testing.T) {
	at := mustParse("2024-10-07T09:05:03+09:00")
	got := EntryOrderID("005930", at)
	want := "ENTRY_005930_20241007_090503"
	if got != want {
		t.Errorf("EntryOrderID() = %q, want %q", got, want)
	}
}

func TestExitOrderID_Format(t *testing.T) {
	at := mustParse("2024-10-07T09:05:03+09:00")
	got := ExitOrderID("stop_loss", "005930", at)
	want := "EXIT_stop_loss_005930_20241007_090503"
	if got != want {
		t.Errorf("ExitOrderID() = %q, want %q", got, want)
	}
}
