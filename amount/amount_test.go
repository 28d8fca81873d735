package amount

import "testing"

func TestNewAmountRejectsAboveMaxSupply(t *testing.T) {
	if _, err := NewAmount(MaxSupplyBaseUnits); err != nil {
		t.Fatalf("expected max supply amount to be valid, got %v", err)
	}
	if _, err := NewAmount(MaxSupplyBaseUnits + 1); err == nil {
		t.Fatal("expected error for amount exceeding max supply")
	}
}

func TestParseDecimalRejectsPrecisionLoss(t *testing.T) {
	if _, err := ParseDecimal("1.123456789"); err != ErrPrecisionLoss {
		t.Fatalf("expected ErrPrecisionLoss, got %v", err)
	}
	got, err := ParseDecimal("1.5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != Amount(150_000_000) {
		t.Fatalf("got %d, want 150000000", got)
	}
}

func TestParseDecimalRejectsNegative(t *testing.T) {
	if _, err := ParseDecimal("-1"); err != ErrNegative {
		t.Fatalf("expected ErrNegative, got %v", err)
	}
}

func TestAddOverflowAndCap(t *testing.T) {
	a := Amount(MaxSupplyBaseUnits)
	if _, err := a.Add(1); err == nil {
		t.Fatal("expected error adding past max supply")
	}
}

func TestSubUnderflow(t *testing.T) {
	if _, err := Amount(1).Sub(2); err != ErrNegative {
		t.Fatalf("expected ErrNegative, got %v", err)
	}
}

func TestDivRoundNearest(t *testing.T) {
	got, err := Amount(10).DivRound(4)
	if err != nil {
		t.Fatal(err)
	}
	if got != 3 {
		t.Fatalf("got %d, want 3 (10/4=2.5 rounds to 3 half-away-from-zero? check)", got)
	}
}

func TestToDecimalRoundTrip(t *testing.T) {
	a := Amount(123_456_789)
	if got, want := a.ToDecimal(), "1.23456789"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestSum(t *testing.T) {
	total, err := Sum([]Amount{1, 2, 3})
	if err != nil {
		t.Fatal(err)
	}
	if total != 6 {
		t.Fatalf("got %d, want 6", total)
	}
}
