package library

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"librarylog/internal/broadcast"
	"librarylog/internal/metrics"
	"librarylog/internal/model"
)

var (
	ErrPersonIDRequired = errors.New("user_id is required")
	ErrPersonNotFound   = errors.New("User not found.")
	ErrNotSignedIn      = errors.New("User is not currently signed in.")
	ErrAlreadySignedIn  = errors.New("User is already signed in.")
	ErrInvalidDate      = errors.New("Invalid date format. Use YYYY-MM-DD.")
	ErrInvalidCapacity  = errors.New("maxCapacity must be zero or a positive number")
)

// Action is what a toggle did.
type Action string

const (
	ActionSignIn  Action = "signin"
	ActionSignOut Action = "signout"
)

// Change is the payload broadcast to viewers when a visit changes.
type Change struct {
	Visit         *model.VisitLog `json:"visit,omitempty"`
	Closed        int64           `json:"closed,omitempty"`
	SignedInCount int64           `json:"signed_in_count"`
}

// Service coordinates sign-in, sign-out and the log views.
type Service struct {
	repo     *Repository
	pub      broadcast.Publisher
	metrics  *metrics.Metrics
	loc      *time.Location
	logger   *zap.Logger
	now      func() time.Time
	capacity atomic.Int64
}

// NewService creates a service backed by a repository. pub and m may be nil.
func NewService(repo *Repository, pub broadcast.Publisher, m *metrics.Metrics, loc *time.Location, logger *zap.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:    repo,
		pub:     pub,
		metrics: m,
		loc:     loc,
		logger:  logger,
		now:     time.Now,
	}
}

// Location is the zone used for day bounds and display.
func (s *Service) Location() *time.Location { return s.loc }

// SignIn opens a visit for a known person.
func (s *Service) SignIn(ctx context.Context, personID string) (*model.VisitLog, error) {
	person, err := s.person(ctx, personID)
	if err != nil {
		return nil, err
	}

	visit, err := s.repo.OpenVisit(ctx, person.ID, s.now())
	if err != nil {
		if !errors.Is(err, ErrAlreadySignedIn) {
			s.logger.Error("open visit failed", zap.String("user_id", person.ID), zap.Error(err))
		}
		return nil, err
	}
	visit.Person = *person

	s.metrics.SignedIn()
	s.logger.Info("signed in", zap.String("user_id", person.ID), zap.Uint("visit_id", visit.ID))
	s.notify(ctx, broadcast.KindSignIn, visit)
	return visit, nil
}

// SignOut closes the person's open visit.
func (s *Service) SignOut(ctx context.Context, personID string) (*model.VisitLog, error) {
	person, err := s.person(ctx, personID)
	if err != nil {
		return nil, err
	}

	visit, err := s.repo.CloseVisit(ctx, person.ID, s.now())
	if err != nil {
		if !errors.Is(err, ErrNotSignedIn) {
			s.logger.Error("close visit failed", zap.String("user_id", person.ID), zap.Error(err))
		}
		return nil, err
	}
	visit.Person = *person

	s.metrics.SignedOut()
	s.logger.Info("signed out", zap.String("user_id", person.ID), zap.Uint("visit_id", visit.ID))
	s.notify(ctx, broadcast.KindSignOut, visit)
	return visit, nil
}

// Toggle signs the person out when present and in otherwise.
func (s *Service) Toggle(ctx context.Context, personID string) (Action, *model.VisitLog, error) {
	person, err := s.person(ctx, personID)
	if err != nil {
		return "", nil, err
	}

	visit, opened, err := s.repo.ToggleVisit(ctx, person.ID, s.now())
	if err != nil {
		s.logger.Error("toggle visit failed", zap.String("user_id", person.ID), zap.Error(err))
		return "", nil, err
	}
	visit.Person = *person

	if opened {
		s.metrics.SignedIn()
		s.notify(ctx, broadcast.KindSignIn, visit)
		return ActionSignIn, visit, nil
	}
	s.metrics.SignedOut()
	s.notify(ctx, broadcast.KindSignOut, visit)
	return ActionSignOut, visit, nil
}

// SignOutAll closes every open visit at the same instant.
func (s *Service) SignOutAll(ctx context.Context) (int64, error) {
	n, err := s.repo.CloseAllOpen(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("close open visits: %w", err)
	}
	s.metrics.SweptVisits(n)
	s.logger.Info("signed everyone out", zap.Int64("closed", n))
	if n > 0 {
		s.publish(ctx, broadcast.KindSweep, Change{Closed: n})
	}
	return n, nil
}

// OpenCount returns how many people are currently signed in.
func (s *Service) OpenCount(ctx context.Context) (int64, error) {
	n, err := s.repo.CountOpen(ctx)
	if err != nil {
		return 0, err
	}
	s.metrics.SetPresent(n)
	return n, nil
}

// SetCapacity records the staff-entered maximum. It lives only in memory.
func (s *Service) SetCapacity(n int64) error {
	if n < 0 {
		return ErrInvalidCapacity
	}
	s.capacity.Store(n)
	s.metrics.SetCapacity(n)
	s.logger.Info("max capacity set", zap.Int64("max_capacity", n))
	return nil
}

// Capacity returns the last value given to SetCapacity.
func (s *Service) Capacity() int64 { return s.capacity.Load() }

func (s *Service) person(ctx context.Context, personID string) (*model.Person, error) {
	personID = strings.TrimSpace(personID)
	if personID == "" {
		return nil, ErrPersonIDRequired
	}
	person, err := s.repo.GetPerson(ctx, personID)
	if err != nil {
		s.logger.Error("lookup person failed", zap.String("user_id", personID), zap.Error(err))
		return nil, err
	}
	if person == nil {
		return nil, ErrPersonNotFound
	}
	return person, nil
}

func (s *Service) notify(ctx context.Context, kind string, visit *model.VisitLog) {
	s.publish(ctx, kind, Change{Visit: visit})
}

func (s *Service) publish(ctx context.Context, kind string, change Change) {
	count, err := s.OpenCount(ctx)
	if err != nil {
		s.logger.Warn("count open visits failed", zap.Error(err))
	}
	change.SignedInCount = count

	if s.pub == nil {
		return
	}
	if _, err := s.pub.Publish(ctx, kind, change); err != nil {
		s.logger.Warn("broadcast failed", zap.String("kind", kind), zap.Error(err))
		return
	}
	s.metrics.Broadcast(kind)
}
