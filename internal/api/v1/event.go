package v1

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ViewingEvent is one playback interaction on the StreamFlix player.
// Identified by (EventID, EventTimestamp, CountryCode): the partition key
// tuple is a subset of — here, exactly — the uniqueness key, because the
// physical router cannot place a row without the full partition key being
// determined at insert time.
type ViewingEvent struct {
	// EventID is assigned by the database (BIGSERIAL) on save and populated
	// back onto the struct. Zero on ingest.
	EventID int64 `json:"event_id"`

	UserID    int64 `json:"user_id"`
	ContentID int64 `json:"content_id"`

	// EventTimestamp is when the interaction happened on the client.
	// First-level partition routing key.
	EventTimestamp time.Time `json:"event_timestamp"`

	// EventType: start, pause, resume, complete, skip.
	EventType string `json:"event_type"`

	WatchDurationSeconds int64  `json:"watch_duration_seconds"`
	DeviceType           string `json:"device_type,omitempty"`

	// CountryCode is the ISO 3166-1 alpha-2 code. Second-level (hash)
	// partition routing key.
	CountryCode string `json:"country_code"`

	Quality       string          `json:"quality,omitempty"`
	BandwidthMbps decimal.Decimal `json:"bandwidth_mbps"`

	// CreatedAt is the server-side ingest time. Set by the ingestion
	// service, not the client.
	CreatedAt time.Time `json:"created_at"`
}

var validEventTypes = map[string]struct{}{
	"start":    {},
	"pause":    {},
	"resume":   {},
	"complete": {},
	"skip":     {},
}

// Validate ensures the event carries everything the partition router needs.
func (e *ViewingEvent) Validate() error {
	if e.UserID <= 0 {
		return fmt.Errorf("user_id is required")
	}
	if e.ContentID <= 0 {
		return fmt.Errorf("content_id is required")
	}
	if e.EventTimestamp.IsZero() {
		return fmt.Errorf("event_timestamp is required")
	}
	if len(e.CountryCode) != 2 {
		return fmt.Errorf("country_code must be a two-letter code, got %q", e.CountryCode)
	}
	if _, ok := validEventTypes[e.EventType]; !ok {
		return fmt.Errorf("unknown event_type %q", e.EventType)
	}
	if e.WatchDurationSeconds < 0 {
		return fmt.Errorf("watch_duration_seconds must be >= 0")
	}
	if e.BandwidthMbps.IsNegative() {
		return fmt.Errorf("bandwidth_mbps must be >= 0")
	}
	return nil
}
