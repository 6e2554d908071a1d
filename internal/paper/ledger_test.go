package paper

import (
	"testing"
)

func TestLedgerLast(t *testing.T) {
	ledger := NewLedger(5)
	for _, id := range []string{"a", "b", "c"} {
		ledger.Record(CloseResult{TradeID: id})
	}
	last := ledger.Last(2)
	if len(last) != 2 || last[0].TradeID != "b" || last[1].TradeID != "c" {
		t.Fatalf("unexpected last results: %+v", last)
	}
	if len(ledger.Last(10)) != 3 {
		t.Fatalf("expected all results when n exceeds size")
	}
	if ledger.Last(0) != nil {
		t.Fatalf("expected nil for n=0")
	}
}

func TestLedgerEvictsOldest(t *testing.T) {
	ledger := NewLedger(3)
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		ledger.Record(CloseResult{TradeID: id})
	}
	if ledger.Len() != 3 {
		t.Fatalf("expected ring capped at 3, got %d", ledger.Len())
	}
	last := ledger.Last(3)
	if last[0].TradeID != "c" || last[1].TradeID != "d" || last[2].TradeID != "e" {
		t.Fatalf("unexpected ring contents: %+v", last)
	}
	if got := ledger.Last(1); got[0].TradeID != "e" {
		t.Fatalf("expected newest result, got %+v", got)
	}
}

func TestLedgerDefaultCapacity(t *testing.T) {
	ledger := NewLedger(0)
	for i := 0; i < defaultLedgerSize+1; i++ {
		ledger.Record(CloseResult{})
	}
	if ledger.Len() != defaultLedgerSize {
		t.Fatalf("expected %d results, got %d", defaultLedgerSize, ledger.Len())
	}
}

func TestMultiRecorder(t *testing.T) {
	a, b := NewLedger(1), NewLedger(1)
	MultiRecorder{a, nil, b}.Record(CloseResult{TradeID: "x"})
	if a.Len() != 1 || b.Len() != 1 {
		t.Fatalf("expected fan-out to both ledgers")
	}
}
