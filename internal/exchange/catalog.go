package exchange

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"slotbot-go/internal/slot"
)

const (
	slotMarker    = "🕒"
	yesMarker     = "✅ YES:"
	noMarker      = "❌ NO"
	missingID     = "N/A"
	separatorLine = "----------------------------------------------------------------------"
)

// Token placeholders written for markets that were not indexed yet.
var placeholderIDs = map[string]struct{}{
	"":            {},
	missingID:     {},
	"Error":       {},
	"Not indexed": {},
}

// Catalog is the known set of slots, optionally mirrored to a text file.
type Catalog struct {
	log  zerolog.Logger
	path string
	loc  *time.Location

	mu     sync.RWMutex
	slots  []slot.Slot
	labels map[string]struct{}
}

// NewCatalog constructs an empty catalog. An empty path keeps it in memory only.
func NewCatalog(log zerolog.Logger, path string, loc *time.Location) *Catalog {
	if loc == nil {
		loc = time.UTC
	}
	return &Catalog{log: log, path: path, loc: loc, labels: make(map[string]struct{})}
}

// Load replaces the in-memory slots with the file contents. A missing file is empty.
func (c *Catalog) Load() error {
	if c.path == "" {
		return nil
	}
	f, err := os.Open(c.path)
	if os.IsNotExist(err) {
		c.replace(nil)
		return nil
	}
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()
	slots, skipped, err := ParseCatalog(f, c.loc)
	if err != nil {
		return err
	}
	if skipped > 0 {
		c.log.Warn().Int("skipped", skipped).Str("path", c.path).Msg("catalog blocks with unreadable labels")
	}
	c.replace(slots)
	return nil
}

// Reset empties the catalog and truncates its file.
func (c *Catalog) Reset() error {
	c.replace(nil)
	if c.path == "" {
		return nil
	}
	if err := os.WriteFile(c.path, nil, 0o644); err != nil {
		return fmt.Errorf("reset catalog: %w", err)
	}
	return nil
}

// Slots returns every known slot ascending by start.
func (c *Catalog) Slots() []slot.Slot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]slot.Slot, len(c.slots))
	copy(out, c.slots)
	return out
}

// Len reports the number of slots.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.slots)
}

// Has reports whether a slot with label is present.
func (c *Catalog) Has(label string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.labels[label]
	return ok
}

// Append adds slots whose labels are new and rewrites the file. Returns how many were added.
func (c *Catalog) Append(slots []slot.Slot) (int, error) {
	c.mu.Lock()
	added := 0
	for _, s := range slots {
		if _, ok := c.labels[s.Label]; ok {
			continue
		}
		c.labels[s.Label] = struct{}{}
		c.slots = append(c.slots, s)
		added++
	}
	slot.Sort(c.slots)
	snapshot := make([]slot.Slot, len(c.slots))
	copy(snapshot, c.slots)
	c.mu.Unlock()

	if added == 0 || c.path == "" {
		return added, nil
	}
	if err := os.WriteFile(c.path, []byte(FormatCatalog(snapshot)), 0o644); err != nil {
		return added, fmt.Errorf("write catalog: %w", err)
	}
	return added, nil
}

func (c *Catalog) replace(slots []slot.Slot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slots = append([]slot.Slot(nil), slots...)
	slot.Sort(c.slots)
	c.labels = make(map[string]struct{}, len(c.slots))
	for _, s := range c.slots {
		c.labels[s.Label] = struct{}{}
	}
}

// FormatBlock renders one slot in catalog block form.
func FormatBlock(s slot.Slot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s Slot: %s", slotMarker, s.Label)
	for _, asset := range slot.Assets {
		pair, ok := s.Markets[asset]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "\n   %s: %s", asset, pair.URL)
		fmt.Fprintf(&b, "\n        %s %s", yesMarker, orMissing(pair.YesID))
		fmt.Fprintf(&b, "\n        %s : %s", noMarker, orMissing(pair.NoID))
	}
	return b.String()
}

// FormatCatalog renders every slot followed by the closing separator.
func FormatCatalog(slots []slot.Slot) string {
	if len(slots) == 0 {
		return ""
	}
	blocks := make([]string, len(slots))
	for i, s := range slots {
		blocks[i] = FormatBlock(s)
	}
	return strings.Join(blocks, "\n\n") + "\n\n" + separatorLine + "\n"
}

// ParseCatalog reads catalog blocks. Blocks whose label cannot be parsed are
// counted in skipped and dropped.
func ParseCatalog(r io.Reader, loc *time.Location) (slots []slot.Slot, skipped int, err error) {
	var (
		label   string
		markets map[slot.Asset]slot.Pair
		current slot.Asset
		open    bool
	)
	flush := func() {
		if !open {
			return
		}
		open = false
		start, perr := slot.ParseLabel(label, loc)
		if perr != nil {
			skipped++
			return
		}
		slots = append(slots, slot.New(label, start, markets))
	}

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "" || strings.HasPrefix(line, "---"):
			continue
		case strings.HasPrefix(line, slotMarker):
			flush()
			rest := strings.TrimSpace(strings.TrimPrefix(line, slotMarker))
			label = strings.TrimSpace(strings.TrimPrefix(rest, "Slot:"))
			markets = make(map[slot.Asset]slot.Pair, len(slot.Assets))
			current = ""
			open = true
		case !open:
			continue
		case strings.HasPrefix(line, yesMarker):
			if current != "" {
				p := markets[current]
				p.YesID = tokenValue(line)
				markets[current] = p
			}
		case strings.HasPrefix(line, noMarker):
			if current != "" {
				p := markets[current]
				p.NoID = tokenValue(line)
				markets[current] = p
			}
		default:
			if asset, url, ok := assetLine(line); ok {
				current = asset
				markets[asset] = slot.Pair{URL: url}
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, skipped, fmt.Errorf("read catalog: %w", err)
	}
	flush()
	slot.Sort(slots)
	return slots, skipped, nil
}

func assetLine(line string) (slot.Asset, string, bool) {
	name, rest, ok := strings.Cut(line, ":")
	if !ok {
		return "", "", false
	}
	for _, asset := range slot.Assets {
		if string(asset) == name {
			return asset, strings.TrimSpace(rest), true
		}
	}
	return "", "", false
}

func tokenValue(line string) string {
	_, v, ok := strings.Cut(line, ":")
	if !ok {
		return ""
	}
	v = strings.TrimSpace(v)
	if _, placeholder := placeholderIDs[v]; placeholder {
		return ""
	}
	return v
}

func orMissing(id string) string {
	if id == "" {
		return missingID
	}
	return id
}
