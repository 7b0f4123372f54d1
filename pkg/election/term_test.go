package election

import "testing"

func TestTermRegisterNextIncrements(t *testing.T) {
	var tr termRegister

	if got := tr.Current(); got != 0 {
		t.Fatalf("expected initial term 0, got %d", got)
	}

	if got := tr.Next(); got != 1 {
		t.Errorf("expected Next() to return 1, got %d", got)
	}
	if got := tr.Next(); got != 2 {
		t.Errorf("expected Next() to return 2, got %d", got)
	}
}

func TestTermRegisterUpdateToOnlyMovesForward(t *testing.T) {
	var tr termRegister
	tr.UpdateTo(5)

	if raised := tr.UpdateTo(3); raised {
		t.Error("UpdateTo with a lower term should not report a raise")
	}
	if got := tr.Current(); got != 5 {
		t.Errorf("term moved backwards: got %d, want 5", got)
	}

	if raised := tr.UpdateTo(7); !raised {
		t.Error("UpdateTo with a higher term should report a raise")
	}
	if got := tr.Current(); got != 7 {
		t.Errorf("expected term 7, got %d", got)
	}
}

func TestTermRegisterIsBefore(t *testing.T) {
	var tr termRegister
	tr.UpdateTo(4)

	if !tr.IsBefore(5) {
		t.Error("expected term 4 to be before 5")
	}
	if tr.IsBefore(4) {
		t.Error("term should not be before itself")
	}
	if tr.IsBefore(3) {
		t.Error("term should not be before a lower term")
	}
}
