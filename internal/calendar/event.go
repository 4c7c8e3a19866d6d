// Package calendar turns the economic-calendar feed into filtered, time-ordered events.
package calendar

import (
	"strings"
	"time"
)

// Impact is the feed's severity scale, ordered Holiday < Low < Medium < High.
type Impact int

const (
	ImpactHoliday Impact = iota
	ImpactLow
	ImpactMedium
	ImpactHigh
)

func (i Impact) String() string {
	switch i {
	case ImpactHoliday:
		return "Holiday"
	case ImpactLow:
		return "Low"
	case ImpactMedium:
		return "Medium"
	case ImpactHigh:
		return "High"
	default:
		return "Unknown"
	}
}

// ParseImpact maps feed text to an Impact. Unrecognized text is Low.
func ParseImpact(s string) Impact {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "holiday":
		return ImpactHoliday
	case "medium":
		return ImpactMedium
	case "high":
		return ImpactHigh
	default:
		return ImpactLow
	}
}

// NotAvailable is the feed's placeholder for a missing forecast or previous value.
const NotAvailable = "N/A"

// Event is one normalized calendar entry. Values are rebuilt on every fetch;
// ID stays the same for the same underlying entry.
type Event struct {
	ID       string
	OccursAt time.Time
	Currency string
	Impact   Impact
	Title    string
	Forecast string
	Previous string

	// DisplayTitle is Title plus forecast/previous, set by Filter.
	DisplayTitle string
}

// MinutesUntil returns fractional minutes from now to the event (negative once it passed).
func (e Event) MinutesUntil(now time.Time) float64 {
	return e.OccursAt.Sub(now).Minutes()
}

// Label returns DisplayTitle when set, otherwise Title.
func (e Event) Label() string {
	if e.DisplayTitle != "" {
		return e.DisplayTitle
	}
	return e.Title
}

// RawRecord is one element of the feed's JSON array.
type RawRecord struct {
	Title    string `json:"title"`
	Country  string `json:"country"`
	Date     string `json:"date"`
	Impact   string `json:"impact"`
	Forecast string `json:"forecast"`
	Previous string `json:"previous"`
}
