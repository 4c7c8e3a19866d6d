package calendar

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	idDateLayout = "Jan 02"
	idTimeLayout = "03:04PM"
)

// ParseError describes one feed record that could not be normalized.
type ParseError struct {
	Index int
	Title string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Title != "" {
		return fmt.Sprintf("record %d (%q): %v", e.Index, e.Title, e.Err)
	}
	return fmt.Sprintf("record %d: %v", e.Index, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

var (
	errNoTitle    = errors.New("missing title")
	errNoCurrency = errors.New("missing country")
	errNoDate     = errors.New("missing date")
)

// Normalize decodes and normalizes every record independently. Bad records
// are returned as *ParseError and never abort the batch; order is preserved.
func Normalize(records []json.RawMessage, loc *time.Location) ([]Event, []error) {
	events := make([]Event, 0, len(records))
	var errs []error
	for i, raw := range records {
		var r RawRecord
		if err := json.Unmarshal(raw, &r); err != nil {
			errs = append(errs, &ParseError{Index: i, Err: err})
			continue
		}
		ev, err := NormalizeRecord(r, loc)
		if err != nil {
			errs = append(errs, &ParseError{Index: i, Title: r.Title, Err: err})
			continue
		}
		events = append(events, ev)
	}
	return events, errs
}

// NormalizeRecord converts one record, placing its time in loc.
func NormalizeRecord(r RawRecord, loc *time.Location) (Event, error) {
	title := strings.TrimSpace(r.Title)
	currency := strings.ToUpper(strings.TrimSpace(r.Country))
	date := strings.TrimSpace(r.Date)
	switch {
	case title == "":
		return Event{}, errNoTitle
	case currency == "":
		return Event{}, errNoCurrency
	case date == "":
		return Event{}, errNoDate
	}
	at, err := time.Parse(time.RFC3339, date)
	if err != nil {
		return Event{}, fmt.Errorf("date: %w", err)
	}
	if loc != nil {
		at = at.In(loc)
	}
	return Event{
		ID:       EventID(at, currency, title),
		OccursAt: at,
		Currency: currency,
		Impact:   ParseImpact(r.Impact),
		Title:    title,
		Forecast: strings.TrimSpace(r.Forecast),
		Previous: strings.TrimSpace(r.Previous),
	}, nil
}

// EventID builds the stable identifier "Jan 02_03:04PM_USD_Title" from the
// event's local date, time, currency and title.
func EventID(at time.Time, currency, title string) string {
	return at.Format(idDateLayout) + "_" + at.Format(idTimeLayout) + "_" + currency + "_" + title
}
