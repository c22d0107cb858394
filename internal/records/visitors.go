package records

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cms-go/internal/cms"
	"cms-go/internal/versioned"
)

// DayLayout formats the per-day counter keys.
const DayLayout = "2006-01-02"

// VisitorStats is the payload of the visitors record.
type VisitorStats struct {
	Total int64            `json:"total"`
	Days  map[string]int64 `json:"days"`
}

// Today returns the count for the day containing t.
func (s VisitorStats) Today(t time.Time) int64 {
	return s.Days[t.UTC().Format(DayLayout)]
}

// Visitors counts visits per UTC day.
type Visitors struct {
	engine     *versioned.Engine
	clock      cms.Clock
	retainDays int
}

// NewVisitors creates a counter keeping retainDays days of history.
func NewVisitors(engine *versioned.Engine, clock cms.Clock, retainDays int) *Visitors {
	if retainDays < 1 {
		retainDays = 1
	}
	return &Visitors{engine: engine, clock: clock, retainDays: retainDays}
}

// Record counts one visit and returns the updated stats.
func (v *Visitors) Record(ctx context.Context) (VisitorStats, error) {
	now := v.clock.Now().UTC()
	today := now.Format(DayLayout)
	cutoff := now.AddDate(0, 0, -(v.retainDays - 1)).Format(DayLayout)

	rec, err := versioned.Update(ctx, v.engine, VisitorsKey, func(current *VisitorStats) (VisitorStats, error) {
		next := VisitorStats{Days: map[string]int64{}}
		if current != nil {
			next.Total = current.Total
			for day, n := range current.Days {
				// Layout sorts lexically in date order.
				if day >= cutoff {
					next.Days[day] = n
				}
			}
		}
		next.Total++
		next.Days[today]++
		return next, nil
	})
	if err != nil {
		return VisitorStats{}, fmt.Errorf("recording visit: %w", err)
	}
	return rec.Data, nil
}

// Stats returns the current counters without changing them.
func (v *Visitors) Stats(ctx context.Context) (VisitorStats, error) {
	rec, err := versioned.Get[VisitorStats](ctx, v.engine, VisitorsKey)
	if errors.Is(err, cms.ErrNotFound) {
		return VisitorStats{Days: map[string]int64{}}, nil
	}
	if err != nil {
		return VisitorStats{}, fmt.Errorf("loading visitors: %w", err)
	}
	if rec.Data.Days == nil {
		rec.Data.Days = map[string]int64{}
	}
	return rec.Data, nil
}
