package sqldb

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// dateLayouts are the textual date forms drivers hand back when they do not
// decode DATE columns themselves (mysql without parseTime, sqlite TEXT).
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
}

// dateLayout is the format dates are bound with on write.
const dateLayout = "2006-01-02"

// toDate converts a scanned DATE value into a UTC calendar date. NULL is an
// error: the engine has no column-level repair for malformed rows.
func toDate(v any) (time.Time, error) {
	switch x := v.(type) {
	case nil:
		return time.Time{}, fmt.Errorf("unexpected NULL date")
	case time.Time:
		return time.Date(x.Year(), x.Month(), x.Day(), 0, 0, 0, 0, time.UTC), nil
	case []byte:
		return parseDate(string(x))
	case string:
		return parseDate(x)
	default:
		return time.Time{}, fmt.Errorf("unsupported date value %T", v)
	}
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparsable date %q", s)
}

// cleanText trims and NFC-normalizes a text attribute read from the source so
// equal names compare equal once they reach the warehouse.
func cleanText(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
