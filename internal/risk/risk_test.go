package risk

import "testing"

func TestAllow(t *testing.T) {
	limits := Limits{MaxNotionalPerTrade: 50}
	if !limits.Allow(0.5, 49.9) {
		t.Fatalf("expected notional under limit to pass")
	}
	if limits.Allow(0.5, 50.1) {
		t.Fatalf("expected notional above limit to fail")
	}
	if limits.Allow(0, 30) {
		t.Fatalf("expected zero entry price to fail")
	}
}

func TestAllowWithoutCap(t *testing.T) {
	var limits Limits
	if !limits.Allow(0.6, 1e6) {
		t.Fatalf("expected uncapped limits to pass")
	}
	if limits.Allow(0.6, 0) {
		t.Fatalf("expected empty notional to fail")
	}
}

func TestShares(t *testing.T) {
	if got := Shares(30, 0.6); got < 49.999999 || got > 50.000001 {
		t.Fatalf("expected 50 shares, got %f", got)
	}
	if got := Shares(30, 0); got != 0 {
		t.Fatalf("expected 0 shares for zero entry, got %f", got)
	}
}
