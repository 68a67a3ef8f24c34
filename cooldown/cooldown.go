package cooldown

import (
	"time"

	"github.com/brettboylen/creator-pulse/models"
)

// DefaultWindowDays is used for event types without a configured window
const DefaultWindowDays = 3

const day = 24 * time.Hour

// Config maps an event type to its suppression window in days
type Config map[string]int

// Window returns the suppression window for an event type
func (c Config) Window(eventType string) time.Duration {
	days, ok := c[eventType]
	if !ok || days <= 0 {
		days = DefaultWindowDays
	}
	return time.Duration(days) * day
}

// Merge returns a copy of c with the entries of other applied on top
func (c Config) Merge(other Config) Config {
	merged := make(Config, len(c)+len(other))
	for k, v := range c {
		merged[k] = v
	}
	for k, v := range other {
		merged[k] = v
	}
	return merged
}

// LastShown returns the most recent history entry of the given type
func LastShown(eventType string, history []models.HistoryEntry) (models.HistoryEntry, bool) {
	var latest models.HistoryEntry
	found := false
	for _, entry := range history {
		if entry.Type != eventType {
			continue
		}
		if !found || entry.Timestamp.After(latest.Timestamp) {
			latest = entry
			found = true
		}
	}
	return latest, found
}

// IsOnCooldown reports whether eventType was shown within its window.
// An entry exactly one window old is still suppressed.
func IsOnCooldown(eventType string, history []models.HistoryEntry, cfg Config, now time.Time) bool {
	last, ok := LastShown(eventType, history)
	if !ok {
		return false
	}
	return !now.After(last.Timestamp.Add(cfg.Window(eventType)))
}

// Remaining returns how long eventType stays suppressed, zero when it is not
func Remaining(eventType string, history []models.HistoryEntry, cfg Config, now time.Time) time.Duration {
	last, ok := LastShown(eventType, history)
	if !ok {
		return 0
	}
	until := last.Timestamp.Add(cfg.Window(eventType))
	if !until.After(now) {
		return 0
	}
	return until.Sub(now)
}
