package exchange

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"slotbot-go/internal/metrics"
)

type subscribeAll struct {
	AssetIDs             []string `json:"assets_ids"`
	Type                 string   `json:"type"`
	InitialDump          bool     `json:"initial_dump"`
	CustomFeatureEnabled bool     `json:"custom_feature_enabled"`
}

type subscribeDelta struct {
	Operation string   `json:"operation"`
	AssetIDs  []string `json:"assets_ids"`
}

var pingFrame = []byte(`{"type":"ping"}`)

// SubscriptionManager owns the set of asset ids the stream should deliver.
//
// Subscribe and Unsubscribe never block. Deltas are written only while a
// connection is attached; every fresh connection receives the whole set.
type SubscriptionManager struct {
	log zerolog.Logger

	mu     sync.Mutex
	ids    map[string]struct{}
	out    chan<- []byte
	resync func()
}

// NewSubscriptionManager constructs an empty manager.
func NewSubscriptionManager(log zerolog.Logger) *SubscriptionManager {
	return &SubscriptionManager{log: log, ids: make(map[string]struct{})}
}

// Subscribe adds ids and sends one batched subscribe for those not already present.
func (m *SubscriptionManager) Subscribe(ids []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var added []string
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := m.ids[id]; ok {
			continue
		}
		m.ids[id] = struct{}{}
		added = append(added, id)
	}
	if len(added) > 0 {
		m.sendDeltaLocked("subscribe", added)
	}
}

// Unsubscribe removes ids and sends one batched unsubscribe for those that were present.
func (m *SubscriptionManager) Unsubscribe(ids []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed []string
	for _, id := range ids {
		if _, ok := m.ids[id]; !ok {
			continue
		}
		delete(m.ids, id)
		removed = append(removed, id)
	}
	if len(removed) > 0 {
		m.sendDeltaLocked("unsubscribe", removed)
	}
}

// IDs returns the current set, sorted.
func (m *SubscriptionManager) IDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.idsLocked()
}

// Len reports how many ids are subscribed.
func (m *SubscriptionManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ids)
}

// attached reports whether a connection currently receives writes.
func (m *SubscriptionManager) attached() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.out != nil
}

// attach routes writes to out. resync is called when a subscription frame cannot be
// queued; the caller must then drop the connection so the next one resends the set.
func (m *SubscriptionManager) attach(out chan<- []byte, resync func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.out = out
	m.resync = resync
	ids := m.idsLocked()
	if len(ids) == 0 {
		m.log.Warn().Msg("stream connected with no ids to subscribe")
		return
	}
	payload, err := json.Marshal(subscribeAll{
		AssetIDs:             ids,
		Type:                 "market",
		InitialDump:          true,
		CustomFeatureEnabled: true,
	})
	if err != nil {
		m.log.Error().Err(err).Msg("encode subscription")
		return
	}
	m.enqueueLocked(payload)
	m.log.Info().Int("ids", len(ids)).Msg("stream subscribed")
}

func (m *SubscriptionManager) detach(out chan<- []byte) {
	m.mu.Lock()
	if m.out == out {
		m.out = nil
		m.resync = nil
	}
	m.mu.Unlock()
}

func (m *SubscriptionManager) ping() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.out == nil {
		return
	}
	select {
	case m.out <- pingFrame:
	default:
		m.log.Warn().Msg("stream write buffer full, skipping heartbeat")
	}
}

func (m *SubscriptionManager) sendDeltaLocked(op string, ids []string) {
	if m.out == nil {
		return
	}
	payload, err := json.Marshal(subscribeDelta{Operation: op, AssetIDs: ids})
	if err != nil {
		m.log.Error().Err(err).Msg("encode subscription delta")
		return
	}
	m.enqueueLocked(payload)
	m.log.Debug().Str("operation", op).Int("ids", len(ids)).Msg("subscription delta")
}

func (m *SubscriptionManager) enqueueLocked(payload []byte) {
	if m.out == nil {
		return
	}
	select {
	case m.out <- payload:
	default:
		m.log.Warn().Int("bytes", len(payload)).Msg("stream write buffer full, forcing resubscribe")
		metrics.StreamResyncs.Inc()
		resync := m.resync
		m.out, m.resync = nil, nil
		if resync != nil {
			resync()
		}
	}
}

func (m *SubscriptionManager) idsLocked() []string {
	out := make([]string, 0, len(m.ids))
	for id := range m.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
