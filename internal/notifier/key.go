package notifier

import (
	"fmt"
	"strconv"
	"time"
)

const TagStarted = "started"

// Key identifies one alert of one event. Its string form is the state store key.
type Key struct {
	EventID string
	Tag     string
}

func ThresholdKey(eventID string, minutes int) Key {
	return Key{EventID: eventID, Tag: "t" + strconv.Itoa(minutes)}
}

func StartedKey(eventID string) Key {
	return Key{EventID: eventID, Tag: TagStarted}
}

func (k Key) String() string { return k.EventID + "_" + k.Tag }

// WeeklySlotKey names the ISO week containing t (in t's location).
func WeeklySlotKey(t time.Time) string {
	y, w := t.ISOWeek()
	return fmt.Sprintf("weekly_%04d-W%02d", y, w)
}

// inThresholdWindow reports whether minutesUntil lies in [n-1, n].
func inThresholdWindow(minutesUntil float64, n int) bool {
	return float64(n-1) <= minutesUntil && minutesUntil <= float64(n)
}

// inStartedWindow reports whether minutesUntil lies in [0, 1).
func inStartedWindow(minutesUntil float64) bool {
	return minutesUntil >= 0 && minutesUntil < 1
}
