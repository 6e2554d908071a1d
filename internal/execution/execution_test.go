package execution

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"slotbot-go/internal/slot"
)

func TestSubmitLogsOrder(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	exec := NewExecutor(logger)
	err := exec.Submit(Order{Asset: slot.BTC, Outcome: slot.Yes, Side: Buy, Kind: Market, Qty: 50, Price: 0.6})
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, `"asset":"BTC"`) {
		t.Fatalf("log does not contain asset: %s", out)
	}
}

func TestSubmitRejectsEmptyOrder(t *testing.T) {
	exec := NewExecutor(zerolog.Nop())
	if err := exec.Submit(Order{Asset: slot.ETH, Side: Buy, Qty: 0, Price: 0.5}); err == nil {
		t.Fatalf("expected zero qty to fail")
	}
	if err := exec.Submit(Order{Asset: slot.ETH, Side: Buy, Qty: 1, Price: 0}); err == nil {
		t.Fatalf("expected zero price to fail")
	}
}

func TestBracketLogsBuyThenLimitSell(t *testing.T) {
	var buf bytes.Buffer
	exec := NewExecutor(zerolog.New(&buf))
	if err := exec.Bracket("t-1", slot.SOL, slot.No, "tok", 40, 0.75, 0.80); err != nil {
		t.Fatalf("Bracket returned error: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 order lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], `"side":"BUY"`) || !strings.Contains(lines[0], `"kind":"market"`) {
		t.Fatalf("unexpected entry order: %s", lines[0])
	}
	if !strings.Contains(lines[1], `"side":"SELL"`) || !strings.Contains(lines[1], `"px":0.8`) {
		t.Fatalf("unexpected exit order: %s", lines[1])
	}
}
