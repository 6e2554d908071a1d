package exchange

import (
	"strings"

	"github.com/tidwall/gjson"
)

// Event is one decoded market stream message.
type Event interface {
	isEvent()
}

// QuoteUpdate carries the best bid and ask for one outcome token.
type QuoteUpdate struct {
	AssetID string
	BestBid float64
	BestAsk float64
}

// Pong acknowledges a heartbeat.
type Pong struct{}

// Unknown is any other message; Type is its event_type or type field.
type Unknown struct {
	Type string
}

func (QuoteUpdate) isEvent() {}
func (Pong) isEvent()        {}
func (Unknown) isEvent()     {}

const eventBestBidAsk = "best_bid_ask"

// Decode parses a stream frame holding one object or an array of objects.
// Malformed frames yield no events.
func Decode(msg []byte) []Event {
	if !gjson.ValidBytes(msg) {
		return nil
	}
	root := gjson.ParseBytes(msg)
	switch {
	case root.IsArray():
		var out []Event
		root.ForEach(func(_, item gjson.Result) bool {
			if item.IsObject() {
				out = append(out, decodeObject(item))
			}
			return true
		})
		return out
	case root.IsObject():
		return []Event{decodeObject(root)}
	default:
		return nil
	}
}

func decodeObject(item gjson.Result) Event {
	kind := item.Get("event_type").String()
	if kind == "" {
		kind = item.Get("type").String()
	}
	switch {
	case kind == eventBestBidAsk:
		return QuoteUpdate{
			AssetID: item.Get("asset_id").String(),
			BestBid: item.Get("best_bid").Float(),
			BestAsk: item.Get("best_ask").Float(),
		}
	case strings.EqualFold(kind, "pong"):
		return Pong{}
	default:
		return Unknown{Type: kind}
	}
}

// EventType names an event for logging.
func EventType(ev Event) string {
	switch e := ev.(type) {
	case QuoteUpdate:
		return eventBestBidAsk
	case Pong:
		return "pong"
	case Unknown:
		if e.Type == "" {
			return "?"
		}
		return e.Type
	default:
		return "?"
	}
}
