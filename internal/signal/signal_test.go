package signal

import (
	"math"
	"testing"
)

func TestTickDerivedPrices(t *testing.T) {
	tk := Tick{AssetID: "1", Bid: 0.60, Ask: 0.64}
	if math.Abs(tk.Mid()-0.62) > 1e-9 {
		t.Fatalf("unexpected mid %.4f", tk.Mid())
	}
	if math.Abs(tk.Spread()-0.04) > 1e-9 {
		t.Fatalf("unexpected spread %.4f", tk.Spread())
	}
	q := tk.Quote()
	if q.Bid != 0.60 || q.Ask != 0.64 || q.Mid != tk.Mid() {
		t.Fatalf("unexpected quote %+v", q)
	}
}
