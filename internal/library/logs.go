package library

import (
	"context"
	"strings"
	"time"

	"librarylog/internal/model"
)

const dateLayout = "2006-01-02"

// Filter is the staff view query.
type Filter struct {
	Date    string // YYYY-MM-DD in the display zone; empty means today
	Name    string
	ShowAll bool // ignore the date, including the today default
}

// LogPage is what the staff view renders.
type LogPage struct {
	Logs          []model.VisitLog `json:"logs"`
	SignedInCount int64            `json:"signed_in_count"`
	MaxCapacity   int64            `json:"max_capacity"`
	Date          string           `json:"date,omitempty"`
	Name          string           `json:"name,omitempty"`
	ShowAll       bool             `json:"show_all"`
}

// Logs returns the visits matching f together with the live open count.
func (s *Service) Logs(ctx context.Context, f Filter) (LogPage, error) {
	q, day, err := s.query(f)
	if err != nil {
		return LogPage{}, err
	}

	visits, err := s.repo.ListVisits(ctx, q)
	if err != nil {
		return LogPage{}, err
	}
	count, err := s.OpenCount(ctx)
	if err != nil {
		return LogPage{}, err
	}
	if visits == nil {
		visits = []model.VisitLog{}
	}
	return LogPage{
		Logs:          visits,
		SignedInCount: count,
		MaxCapacity:   s.Capacity(),
		Date:          day,
		Name:          q.Name,
		ShowAll:       f.ShowAll,
	}, nil
}

func (s *Service) query(f Filter) (VisitQuery, string, error) {
	q := VisitQuery{Name: strings.TrimSpace(f.Name)}
	if f.ShowAll {
		return q, "", nil
	}

	var day time.Time
	if d := strings.TrimSpace(f.Date); d != "" {
		parsed, err := time.ParseInLocation(dateLayout, d, s.loc)
		if err != nil {
			return VisitQuery{}, "", ErrInvalidDate
		}
		day = parsed
	} else {
		now := s.now().In(s.loc)
		day = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
	}
	q.From, q.To = DayBounds(day, s.loc)
	return q, day.Format(dateLayout), nil
}

// DayBounds returns midnight of day and of the following day in loc.
// AddDate keeps the bounds right across DST changes.
func DayBounds(day time.Time, loc *time.Location) (time.Time, time.Time) {
	day = day.In(loc)
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}
