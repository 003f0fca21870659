// Package datetime converts between stored UTC timestamps and the fixed
// +09:00 display representation used by the client.
package datetime

import (
	"errors"
	"time"
)

// Layout is the literal format used for both display and input.
const Layout = "2006-01-02 15:04:05"

// ErrMalformedTimestamp is returned when an input string does not match Layout.
var ErrMalformedTimestamp = errors.New("malformed timestamp")

var displayZone = time.FixedZone("JST", 9*60*60)

// FormatDisplay renders t at +09:00.
func FormatDisplay(t time.Time) string {
	return t.In(displayZone).Format(Layout)
}

// FormatDisplayPtr is FormatDisplay for optional columns; nil stays nil so the
// JSON encoder emits null.
func FormatDisplayPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return FormatDisplay(*t)
}

// ParseInput parses a client-supplied timestamp in the display zone and
// returns it in UTC. The empty string means no value.
func ParseInput(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	parsed, err := time.ParseInLocation(Layout, value, displayZone)
	if err != nil {
		return nil, ErrMalformedTimestamp
	}
	utc := parsed.UTC()
	return &utc, nil
}
