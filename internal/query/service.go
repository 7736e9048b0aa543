package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	v1 "github.com/streamflix/partwise/internal/api/v1"
	"github.com/streamflix/partwise/internal/core/storage"
	"github.com/streamflix/partwise/internal/provision"
)

const (
	defaultEventLimit = 1000
	maxEventLimit     = 10000
	maxQuerySpan      = 366 * 24 * time.Hour
)

// ErrInvalidQuery marks request validation errors that should return HTTP 400.
var ErrInvalidQuery = errors.New("invalid query")

// HorizonProvisioner is the slice of the provisioner the API needs: ensure a
// contiguous range of months exists.
type HorizonProvisioner interface {
	EnsureHorizon(ctx context.Context, from, to time.Time, maxParallel int) ([]provision.HorizonOutcome, error)
}

// Service implements the read API plus the on-demand provisioning endpoint.
type Service struct {
	aggregates  storage.AggregateStore
	events      storage.EventStore
	meta        storage.PartitionMetadata
	provisioner HorizonProvisioner
	baseTable   string
	maxParallel int
}

func NewService(
	aggregates storage.AggregateStore,
	events storage.EventStore,
	meta storage.PartitionMetadata,
	provisioner HorizonProvisioner,
	baseTable string,
	maxParallel int,
) *Service {
	if maxParallel <= 0 {
		maxParallel = 1
	}
	return &Service{
		aggregates:  aggregates,
		events:      events,
		meta:        meta,
		provisioner: provisioner,
		baseTable:   baseTable,
		maxParallel: maxParallel,
	}
}

// QueryDailyAggregates serves the precomputed daily distinct-user counts over
// [from, to].
func (s *Service) QueryDailyAggregates(ctx context.Context, from, to time.Time) (*DailyAggregateResponse, error) {
	if err := validateRange(from, to); err != nil {
		return nil, err
	}

	days, err := s.aggregates.QueryDays(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("query daily aggregates: %w", err)
	}
	if days == nil {
		days = []storage.AggregateRow{}
	}

	return &DailyAggregateResponse{From: from, To: to, Days: days}, nil
}

// QueryEvents serves raw viewing events in [from, to), optionally filtered by
// country. The range filter matches the physical layout, so storage only scans
// the partitions the window touches.
func (s *Service) QueryEvents(ctx context.Context, from, to time.Time, countryCode string, limit int) (*EventsResponse, error) {
	if err := validateRange(from, to); err != nil {
		return nil, err
	}
	if countryCode != "" && len(countryCode) != 2 {
		return nil, fmt.Errorf("%w: country must be a two-letter code, got %q", ErrInvalidQuery, countryCode)
	}
	if limit <= 0 {
		limit = defaultEventLimit
	}
	if limit > maxEventLimit {
		limit = maxEventLimit
	}

	events, err := s.events.QueryEvents(ctx, from, to, countryCode, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	if events == nil {
		events = []*v1.ViewingEvent{}
	}

	return &EventsResponse{
		From:        from,
		To:          to,
		CountryCode: countryCode,
		Count:       len(events),
		Events:      events,
	}, nil
}

// ListPartitions enumerates the physical partitions backing the event table,
// ascending by name.
func (s *Service) ListPartitions(ctx context.Context) (*PartitionsResponse, error) {
	names, err := s.meta.ListPartitions(ctx, s.baseTable+"_%")
	if err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}
	if names == nil {
		names = []string{}
	}
	return &PartitionsResponse{BaseTable: s.baseTable, Count: len(names), Partitions: names}, nil
}

// EnsurePartitions provisions every month in [from, to]. Per-month failures
// are reported in the response, not hidden behind a single error.
func (s *Service) EnsurePartitions(ctx context.Context, req EnsureRequest) (*EnsureResponse, error) {
	if req.To.Before(req.From) {
		return nil, fmt.Errorf("%w: to %s is before from %s", ErrInvalidQuery, req.To.Format(time.RFC3339), req.From.Format(time.RFC3339))
	}

	outcomes, err := s.provisioner.EnsureHorizon(ctx, req.From, req.To, s.maxParallel)
	if err != nil {
		slog.Warn("[Query] Ensure run completed with failures", "error", err)
	}

	resp := &EnsureResponse{
		From:     req.From,
		To:       req.To,
		Months:   len(outcomes),
		Outcomes: make([]EnsureOutcome, 0, len(outcomes)),
	}
	for _, o := range outcomes {
		oc := EnsureOutcome{
			Target:        o.Target,
			PartitionName: o.Result.PartitionName,
			Created:       o.Result.Created,
		}
		if o.Err != nil {
			oc.Error = o.Err.Error()
			resp.Failed++
		}
		resp.Outcomes = append(resp.Outcomes, oc)
	}
	return resp, nil
}

func validateRange(from, to time.Time) error {
	if from.IsZero() || to.IsZero() {
		return fmt.Errorf("%w: from and to are required", ErrInvalidQuery)
	}
	if to.Before(from) {
		return fmt.Errorf("%w: to %s is before from %s", ErrInvalidQuery, to.Format(time.RFC3339), from.Format(time.RFC3339))
	}
	if to.Sub(from) > maxQuerySpan {
		return fmt.Errorf("%w: range exceeds %s", ErrInvalidQuery, maxQuerySpan)
	}
	return nil
}
