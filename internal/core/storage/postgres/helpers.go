package postgres

import (
	"database/sql"

	"github.com/shopspring/decimal"

	v1 "github.com/streamflix/partwise/internal/api/v1"
)

type scanner interface {
	Scan(dest ...interface{}) error
}

// scanEventRow scans a database row into a ViewingEvent.
// Compatible with both sql.Row (single) and sql.Rows (multiple).
// device_type, quality and bandwidth_mbps are nullable columns, so rows
// written by external tooling scan cleanly even without those fields.
func scanEventRow(row scanner) (*v1.ViewingEvent, error) {
	var (
		evt        v1.ViewingEvent
		deviceType sql.NullString
		quality    sql.NullString
		bandwidth  decimal.NullDecimal
	)
	err := row.Scan(
		&evt.EventID,
		&evt.UserID,
		&evt.ContentID,
		&evt.EventTimestamp,
		&evt.EventType,
		&evt.WatchDurationSeconds,
		&deviceType,
		&evt.CountryCode,
		&quality,
		&bandwidth,
		&evt.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	evt.DeviceType = deviceType.String
	evt.Quality = quality.String
	if bandwidth.Valid {
		evt.BandwidthMbps = bandwidth.Decimal
	}
	return &evt, nil
}
