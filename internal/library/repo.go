package library

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"librarylog/internal/model"
)

// Repository persists people and visits through GORM.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a repo.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// GetPerson returns the person with the given id code, or nil when absent.
func (r *Repository) GetPerson(ctx context.Context, id string) (*model.Person, error) {
	var p model.Person
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// EnsurePerson inserts p unless a person with the same id exists.
// It reports whether a row was inserted.
func (r *Repository) EnsurePerson(ctx context.Context, p model.Person) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(&p)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// CountPeople returns the number of registered people.
func (r *Repository) CountPeople(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Person{}).Count(&n).Error
	return n, err
}

// OpenVisit starts a visit for personID at the given time. The open-visit
// check and the insert share one transaction, and the partial unique index
// rejects whatever slips past a concurrent request.
func (r *Repository) OpenVisit(ctx context.Context, personID string, at time.Time) (*model.VisitLog, error) {
	visit := &model.VisitLog{PersonID: personID, TimeIn: at.UTC()}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		open, err := latestOpen(tx, personID)
		if err != nil {
			return err
		}
		if open != nil {
			return ErrAlreadySignedIn
		}
		return tx.Omit(clause.Associations).Create(visit).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, ErrAlreadySignedIn
	}
	if err != nil {
		return nil, err
	}
	return visit, nil
}

// CloseVisit sets the exit time on the person's most recent open visit.
func (r *Repository) CloseVisit(ctx context.Context, personID string, at time.Time) (*model.VisitLog, error) {
	var closed *model.VisitLog
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		open, err := latestOpen(tx, personID)
		if err != nil {
			return err
		}
		if open == nil {
			return ErrNotSignedIn
		}
		if err := closeOne(tx, open, at); err != nil {
			return err
		}
		closed = open
		return nil
	})
	if err != nil {
		return nil, err
	}
	return closed, nil
}

// ToggleVisit closes the person's open visit if there is one, otherwise opens
// a new one. opened reports which happened.
func (r *Repository) ToggleVisit(ctx context.Context, personID string, at time.Time) (visit *model.VisitLog, opened bool, err error) {
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		open, err := latestOpen(tx, personID)
		if err != nil {
			return err
		}
		if open != nil {
			if err := closeOne(tx, open, at); err != nil {
				return err
			}
			visit = open
			return nil
		}
		visit = &model.VisitLog{PersonID: personID, TimeIn: at.UTC()}
		opened = true
		return tx.Omit(clause.Associations).Create(visit).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, false, ErrAlreadySignedIn
	}
	if err != nil {
		return nil, false, err
	}
	return visit, opened, nil
}

// CloseAllOpen closes every open visit at the given time.
func (r *Repository) CloseAllOpen(ctx context.Context, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&model.VisitLog{}).
		Where("time_out IS NULL").
		Update("time_out", at.UTC())
	return res.RowsAffected, res.Error
}

// CountOpen returns the number of visits without an exit time.
func (r *Repository) CountOpen(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.VisitLog{}).Where("time_out IS NULL").Count(&n).Error
	return n, err
}

// VisitQuery narrows ListVisits. Zero values mean "no constraint".
type VisitQuery struct {
	From time.Time // inclusive lower bound on time_in
	To   time.Time // exclusive upper bound on time_in
	Name string    // exact person name
}

// ListVisits returns visits with their person, newest first.
func (r *Repository) ListVisits(ctx context.Context, q VisitQuery) ([]model.VisitLog, error) {
	db := r.db.WithContext(ctx).Model(&model.VisitLog{}).Preload("Person")
	if !q.From.IsZero() {
		db = db.Where("visit_logs.time_in >= ?", q.From.UTC())
	}
	if !q.To.IsZero() {
		db = db.Where("visit_logs.time_in < ?", q.To.UTC())
	}
	if q.Name != "" {
		db = db.Joins("JOIN people ON people.id = visit_logs.person_id").
			Where("people.name = ?", q.Name)
	}

	var visits []model.VisitLog
	err := db.Order("visit_logs.time_in DESC").Order("visit_logs.id DESC").Find(&visits).Error
	return visits, err
}

func latestOpen(tx *gorm.DB, personID string) (*model.VisitLog, error) {
	var v model.VisitLog
	err := tx.Where("person_id = ? AND time_out IS NULL", personID).
		Order("time_in DESC").
		Take(&v).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &v, nil
}

func closeOne(tx *gorm.DB, v *model.VisitLog, at time.Time) error {
	out := at.UTC()
	res := tx.Model(&model.VisitLog{}).
		Where("id = ? AND time_out IS NULL", v.ID).
		Update("time_out", out)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotSignedIn
	}
	v.TimeOut = &out
	return nil
}
