package exchange

import "testing"

func TestDecodeSingleQuote(t *testing.T) {
	events := Decode([]byte(`{"event_type":"best_bid_ask","asset_id":"tok-1","best_bid":"0.51","best_ask":"0.53"}`))
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	q, ok := events[0].(QuoteUpdate)
	if !ok {
		t.Fatalf("expected QuoteUpdate, got %T", events[0])
	}
	if q.AssetID != "tok-1" || q.BestBid != 0.51 || q.BestAsk != 0.53 {
		t.Fatalf("unexpected quote %+v", q)
	}
}

func TestDecodeArray(t *testing.T) {
	events := Decode([]byte(`[
		{"event_type":"book","asset_id":"a"},
		{"event_type":"best_bid_ask","asset_id":"b","best_bid":0.4,"best_ask":0.42},
		"junk",
		{"type":"pong"}
	]`))
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if u, ok := events[0].(Unknown); !ok || u.Type != "book" {
		t.Fatalf("expected Unknown(book), got %#v", events[0])
	}
	if q, ok := events[1].(QuoteUpdate); !ok || q.BestBid != 0.4 {
		t.Fatalf("expected quote, got %#v", events[1])
	}
	if _, ok := events[2].(Pong); !ok {
		t.Fatalf("expected Pong, got %#v", events[2])
	}
}

func TestDecodeMalformed(t *testing.T) {
	for _, raw := range []string{"", "{", "PONG", "not json", "42"} {
		if events := Decode([]byte(raw)); len(events) != 0 {
			t.Fatalf("expected no events for %q, got %d", raw, len(events))
		}
	}
}

func TestEventType(t *testing.T) {
	cases := map[string]Event{
		"best_bid_ask": QuoteUpdate{},
		"pong":         Pong{},
		"book":         Unknown{Type: "book"},
		"?":            Unknown{},
	}
	for want, ev := range cases {
		if got := EventType(ev); got != want {
			t.Fatalf("expected %s got %s", want, got)
		}
	}
}
