package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

// zone-less layouts are what the backend emits for LocalDateTime/LocalDate.
var localLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Timestamp decodes either RFC 3339 or zone-less backend timestamps.
type Timestamp struct {
	time.Time
}

// UnmarshalJSON implements json.Unmarshaler. A value that is not a
// recognizable timestamp decodes as the zero time, so one odd field never
// fails the surrounding payload.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	t.Time = time.Time{}
	if bytes.Equal(data, []byte("null")) {
		return nil
	}

	raw, err := strconv.Unquote(string(data))
	if err != nil {
		log.Warn().Str("raw", string(data)).Msg("ignoring non-string timestamp")
		return nil
	}
	if raw == "" {
		return nil
	}

	parsed, err := ParseTime(raw)
	if err != nil {
		log.Warn().Err(err).Msg("ignoring unparseable timestamp")
		return nil
	}
	t.Time = parsed
	return nil
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Format(time.RFC3339Nano))
}

// ParseTime accepts RFC 3339 and the backend's zone-less formats (local time).
func ParseTime(raw string) (time.Time, error) {
	if parsed, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return parsed, nil
	}
	for _, layout := range localLayouts {
		if parsed, err := time.ParseInLocation(layout, raw, time.Local); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}

// timePtr converts an optional Timestamp into an optional time.
func timePtr(ts *Timestamp) *time.Time {
	if ts == nil || ts.IsZero() {
		return nil
	}
	v := ts.Time
	return &v
}
