package catalog

import (
	"strings"
	"time"
)

// DefaultThresholdDays applies to absent or unknown periodicities.
const DefaultThresholdDays = 730

// DefaultThresholds maps provider periodicity labels to freshness windows in days.
func DefaultThresholds() map[string]int {
	return map[string]int{
		"Diária":     15,
		"Semanal":    30,
		"Mensal":     60,
		"Trimestral": 120,
		"Anual":      400,
	}
}

// Activeness decides whether a series is still maintained given its cadence.
// Lookups are case-insensitive because viper lowercases map keys.
type Activeness struct {
	thresholds  map[string]int
	defaultDays int
}

// NewActiveness builds a classifier. A non-positive defaultDays falls back to
// DefaultThresholdDays.
func NewActiveness(thresholds map[string]int, defaultDays int) Activeness {
	if defaultDays <= 0 {
		defaultDays = DefaultThresholdDays
	}
	normalized := make(map[string]int, len(thresholds))
	for k, v := range thresholds {
		normalized[normalizePeriodicity(k)] = v
	}
	return Activeness{thresholds: normalized, defaultDays: defaultDays}
}

// Threshold returns the freshness window for a periodicity.
func (a Activeness) Threshold(periodicity *string) int {
	if periodicity == nil {
		return a.defaultDays
	}
	if days, ok := a.thresholds[normalizePeriodicity(*periodicity)]; ok {
		return days
	}
	return a.defaultDays
}

// IsActive reports whether last is within the periodicity's window of now.
// Elapsed days are whole days, truncated.
func (a Activeness) IsActive(periodicity *string, last, now time.Time) bool {
	elapsed := int(now.Sub(last) / (24 * time.Hour))
	return elapsed <= a.Threshold(periodicity)
}

// FilterActive keeps only the enriched series that pass IsActive.
func (a Activeness) FilterActive(items []Enriched, now time.Time) []Enriched {
	out := make([]Enriched, 0, len(items))
	for _, item := range items {
		if a.IsActive(item.Metadata.Periodicity, item.Observation.Date, now) {
			out = append(out, item)
		}
	}
	return out
}

func normalizePeriodicity(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
