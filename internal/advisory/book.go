// Package advisory maps detection labels to care advice and treatment
// details. The book ships with built-in entries and can be overridden by a
// JSON file that is hot-reloaded on change.
package advisory

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"

	"plantify-cam/internal/detect"
)

// HealthyLabel is the one label that never raises an alert.
const HealthyLabel = "Healthy_Leaf_of_Jackfruit"

// FallbackAdvice is returned for labels the book does not know.
const FallbackAdvice = "Unidentified condition, please inspect the plant manually."

// Entry holds the advice shown with a frame plus the treatment details
// recorded with an alert.
type Entry struct {
	Advice     string `json:"advice"`
	Fertilizer string `json:"fertilizer"`
	Pesticide  string `json:"pesticide"`
	Solution   string `json:"solution"`
}

func defaultEntries() map[string]Entry {
	return map[string]Entry{
		HealthyLabel: {
			Advice: "Healthy jackfruit leaf! Keep up the regular watering and fertilizing schedule.",
		},
		"Algal_Leaf_Spot_of_Jackfruit": {
			Advice:     "Algal leaf spot detected! Prune infected leaves, avoid overhead watering, and apply a copper-based treatment.",
			Fertilizer: "NPK 20-20-20",
			Pesticide:  "Copper-based pesticide",
			Solution:   "Prune infected leaves and water moderately.",
		},
		"Black_Spot_of_Jackfruit": {
			Advice:     "Black spot detected! Remove diseased leaves, boost potassium fertilization, and apply azoxystrobin or mancozeb.",
			Fertilizer: "NPK 20-20-20",
			Pesticide:  "Copper-based pesticide",
			Solution:   "Prune infected leaves and water moderately.",
		},
	}
}

// Book is a concurrency-safe label→Entry lookup table.
type Book struct {
	mu      sync.RWMutex
	entries map[string]Entry
	logger  *zap.Logger

	watchCancel chan struct{}
}

// NewBook creates a book populated with the built-in entries.
func NewBook(logger *zap.Logger) *Book {
	return &Book{
		entries: defaultEntries(),
		logger:  logger,
	}
}

// Lookup returns the entry for a label. Unknown labels get an entry whose
// advice is the generic fallback.
func (b *Book) Lookup(label string) Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if e, ok := b.entries[label]; ok {
		return e
	}
	return Entry{Advice: FallbackAdvice}
}

// IsDisease reports whether a label should raise an alert: anything that is
// neither the healthy sentinel nor the unknown sentinel.
func IsDisease(label string) bool {
	return label != HealthyLabel && label != detect.LabelUnknown
}

// LoadFile replaces the book's entries with the contents of a JSON file
// (a map from label to Entry). The built-in entries are discarded, so an
// override file must be complete.
func (b *Book) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read advisory file: %w", err)
	}

	var entries map[string]Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("parse advisory file: %w", err)
	}
	if len(entries) == 0 {
		return fmt.Errorf("advisory file %s has no entries", path)
	}

	b.mu.Lock()
	b.entries = entries
	b.mu.Unlock()
	return nil
}
