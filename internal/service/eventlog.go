package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"agropres/internal/models"
	"agropres/internal/store"
)

// LogFilter narrows the engine event log by time range and type.
type LogFilter struct {
	From time.Time // inclusive; zero means no lower bound
	To   time.Time // inclusive; zero means no upper bound
	Type string    // "", RECONCILE, COMMAND, ROLLBACK, SCHEDULE_SAVE, DISPATCH, DISPATCH_FAILED
}

type EventLogService struct {
	eventRepo store.EventRepo
}

func NewEventLogService(eventRepo store.EventRepo) *EventLogService {
	return &EventLogService{eventRepo: eventRepo}
}

var errInvalidTimeRange = errors.New("invalid time range: From must be <= To")

// normalizeToUTC returns t in UTC, preserving zero time values.
func normalizeToUTC(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}

// normalizeAndValidateFilter prepares query parameters and validates the
// time range.
func normalizeAndValidateFilter(f LogFilter) (time.Time, time.Time, string, error) {
	from := normalizeToUTC(f.From)
	to := normalizeToUTC(f.To)

	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return time.Time{}, time.Time{}, "", errInvalidTimeRange
	}

	return from, to, strings.TrimSpace(strings.ToUpper(f.Type)), nil
}

func (s *EventLogService) List(ctx context.Context, f LogFilter) ([]models.EngineEvent, error) {
	from, to, typ, err := normalizeAndValidateFilter(f)
	if err != nil {
		return nil, err
	}
	return s.eventRepo.List(ctx, from, to, typ)
}
