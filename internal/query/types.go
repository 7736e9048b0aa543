package query

import (
	"time"

	v1 "github.com/streamflix/partwise/internal/api/v1"
	"github.com/streamflix/partwise/internal/core/storage"
)

// DailyAggregateResponse is the response for a daily distinct-user query.
type DailyAggregateResponse struct {
	From time.Time              `json:"from"`
	To   time.Time              `json:"to"`
	Days []storage.AggregateRow `json:"days"`
}

// EventsResponse is the response for a raw event range query.
type EventsResponse struct {
	From        time.Time          `json:"from"`
	To          time.Time          `json:"to"`
	CountryCode string             `json:"country_code,omitempty"`
	Count       int                `json:"count"`
	Events      []*v1.ViewingEvent `json:"events"`
}

// PartitionsResponse lists the physical partitions currently backing a table.
type PartitionsResponse struct {
	BaseTable  string   `json:"base_table"`
	Count      int      `json:"count"`
	Partitions []string `json:"partitions"`
}

// EnsureRequest asks for partition coverage over [From, To].
type EnsureRequest struct {
	From time.Time `json:"from" binding:"required" time_format:"2006-01-02T15:04:05Z07:00"`
	To   time.Time `json:"to" binding:"required" time_format:"2006-01-02T15:04:05Z07:00"`
}

// EnsureOutcome is the per-month slice of an ensure run.
type EnsureOutcome struct {
	Target        time.Time `json:"target"`
	PartitionName string    `json:"partition_name"`
	Created       bool      `json:"created"`
	Error         string    `json:"error,omitempty"`
}

// EnsureResponse reports every month the run touched, failures included.
type EnsureResponse struct {
	From     time.Time       `json:"from"`
	To       time.Time       `json:"to"`
	Months   int             `json:"months"`
	Failed   int             `json:"failed"`
	Outcomes []EnsureOutcome `json:"outcomes"`
}
