package exchange

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"
	"github.com/tidwall/gjson"

	"slotbot-go/internal/config"
	"slotbot-go/internal/slot"
)

const (
	defaultGammaBaseURL = "https://gamma-api.polymarket.com"
	defaultEventBaseURL = "https://polymarket.com/event"
)

// minValidAssets is how many of the four markets must be indexed before a slot is kept.
const minValidAssets = 3

var slugNames = map[slot.Asset]string{
	slot.BTC: "bitcoin",
	slot.ETH: "ethereum",
	slot.SOL: "solana",
	slot.XRP: "xrp",
}

// Discovery periodically looks up the next hourly up-or-down markets and appends them to the catalog.
type Discovery struct {
	log       zerolog.Logger
	client    *http.Client
	catalog   *Catalog
	loc       *time.Location
	gammaBase string
	eventBase string
	count     int
	workers   int
	interval  time.Duration
	now       func() time.Time
}

type marketResult struct {
	index int
	asset slot.Asset
	pair  slot.Pair
	err   error
}

// NewDiscovery constructs a discovery service writing into catalog.
func NewDiscovery(log zerolog.Logger, cfg config.Discovery, catalog *Catalog) (*Discovery, error) {
	tz := cfg.Timezone
	if tz == "" {
		tz = "America/New_York"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("discovery timezone: %w", err)
	}
	d := &Discovery{
		log:       log,
		client:    &http.Client{Timeout: config.Millis(cfg.TimeoutMs)},
		catalog:   catalog,
		loc:       loc,
		gammaBase: strings.TrimSuffix(cfg.GammaBaseURL, "/"),
		eventBase: strings.TrimSuffix(cfg.EventBaseURL, "/"),
		count:     cfg.Count,
		workers:   cfg.Workers,
		interval:  config.Millis(cfg.RefreshInterval),
		now:       time.Now,
	}
	if d.gammaBase == "" {
		d.gammaBase = defaultGammaBaseURL
	}
	if d.eventBase == "" {
		d.eventBase = defaultEventBaseURL
	}
	if d.count <= 0 {
		d.count = 10
	}
	if d.workers <= 0 {
		d.workers = 20
	}
	if d.client.Timeout <= 0 {
		d.client.Timeout = 10 * time.Second
	}
	if d.interval <= 0 {
		d.interval = time.Hour
	}
	return d, nil
}

// Start launches the refresh loop. The first refresh happens one interval from now.
func (d *Discovery) Start(ctx context.Context) {
	if d == nil {
		return
	}
	go d.loop(ctx)
}

func (d *Discovery) loop(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := d.Refresh(ctx); err != nil {
				d.log.Warn().Err(err).Msg("slot discovery refresh failed")
			}
		}
	}
}

// Refresh fetches upcoming slots and appends those not yet in the catalog.
func (d *Discovery) Refresh(ctx context.Context) (int, error) {
	fetched := d.Fetch(ctx)
	fresh := make([]slot.Slot, 0, len(fetched))
	for _, s := range fetched {
		if d.catalog.Has(s.Label) {
			d.log.Debug().Str("slot", s.Label).Msg("slot already known")
			continue
		}
		valid := s.ValidAssets()
		if valid < minValidAssets {
			d.log.Info().Str("slot", s.Label).Int("valid", valid).Msg("skipping slot, markets not indexed")
			continue
		}
		d.log.Info().Str("slot", s.Label).Int("valid", valid).Msg("discovered slot")
		fresh = append(fresh, s)
	}
	added, err := d.catalog.Append(fresh)
	if err != nil {
		return added, err
	}
	d.log.Info().Int("fetched", len(fetched)).Int("added", added).Int("known", d.catalog.Len()).Msg("slot discovery complete")
	return added, nil
}

// Fetch builds the next count hourly slots and resolves their markets concurrently.
// Markets that fail to resolve are left without token ids.
func (d *Discovery) Fetch(ctx context.Context) []slot.Slot {
	starts := UpcomingStarts(d.now(), d.loc, d.count)

	p := pool.NewWithResults[marketResult]().WithMaxGoroutines(d.workers)
	for i, start := range starts {
		for _, asset := range slot.Assets {
			i, start, asset := i, start, asset
			p.Go(func() marketResult {
				slug := MarketSlug(asset, start.In(d.loc))
				pair, err := d.fetchMarket(ctx, slug)
				return marketResult{index: i, asset: asset, pair: pair, err: err}
			})
		}
	}
	results := p.Wait()

	markets := make([]map[slot.Asset]slot.Pair, len(starts))
	for i := range markets {
		markets[i] = make(map[slot.Asset]slot.Pair, len(slot.Assets))
	}
	for _, r := range results {
		if r.err != nil {
			d.log.Debug().Err(r.err).Str("asset", string(r.asset)).Msg("market lookup failed")
		}
		markets[r.index][r.asset] = r.pair
	}

	out := make([]slot.Slot, len(starts))
	for i, start := range starts {
		out[i] = slot.New(slot.Label(start, d.loc), start, markets[i])
	}
	return out
}

func (d *Discovery) fetchMarket(ctx context.Context, slug string) (slot.Pair, error) {
	pair := slot.Pair{URL: d.eventBase + "/" + slug}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.gammaBase+"/markets/slug/"+slug, nil)
	if err != nil {
		return pair, err
	}
	req.Header.Set("User-Agent", "slotbot-go/1.0 (discovery)")
	resp, err := d.client.Do(req)
	if err != nil {
		return pair, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return pair, fmt.Errorf("%s: unexpected status %d", slug, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return pair, err
	}
	yes, no, err := parseTokenIDs(body)
	if err != nil {
		return pair, fmt.Errorf("%s: %w", slug, err)
	}
	pair.YesID, pair.NoID = yes, no
	return pair, nil
}

// parseTokenIDs reads clobTokenIds, a JSON array encoded as a string. Index 0 is YES.
func parseTokenIDs(body []byte) (string, string, error) {
	raw := gjson.GetBytes(body, "clobTokenIds")
	if !raw.Exists() {
		return "", "", fmt.Errorf("clobTokenIds missing")
	}
	ids := raw
	if raw.Type == gjson.String {
		ids = gjson.Parse(raw.Str)
	}
	if !ids.IsArray() {
		return "", "", fmt.Errorf("clobTokenIds not an array")
	}
	arr := ids.Array()
	var yes, no string
	if len(arr) > 0 {
		yes = arr[0].String()
	}
	if len(arr) > 1 {
		no = arr[1].String()
	}
	return yes, no, nil
}

// UpcomingStarts returns the next count whole hours after now in loc.
func UpcomingStarts(now time.Time, loc *time.Location, count int) []time.Time {
	local := now.In(loc)
	hour := time.Date(local.Year(), local.Month(), local.Day(), local.Hour(), 0, 0, 0, loc)
	out := make([]time.Time, count)
	for i := range out {
		out[i] = hour.Add(time.Duration(i+1) * time.Hour)
	}
	return out
}

// MarketSlug renders the event slug such as "bitcoin-up-or-down-february-20-5am-et".
func MarketSlug(asset slot.Asset, start time.Time) string {
	return fmt.Sprintf("%s-up-or-down-%s-%d-%s%s-et",
		slugNames[asset],
		strings.ToLower(start.Format("January")),
		start.Day(),
		start.Format("3"),
		start.Format("pm"),
	)
}
