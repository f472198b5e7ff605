package model

import "time"

// Person is someone allowed to sign in at the library, keyed by the id code
// printed on their card.
type Person struct {
	ID   string `gorm:"primaryKey;size:50" json:"id"`
	Name string `gorm:"size:100;not null" json:"name"`
}

func (Person) TableName() string { return "people" }

// VisitLog is one stay in the library. A nil TimeOut means the person is
// still inside; the partial unique index keeps that to one row per person.
type VisitLog struct {
	ID       uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	PersonID string     `gorm:"size:50;not null;index:idx_visit_logs_person;uniqueIndex:idx_visit_logs_open,where:time_out IS NULL" json:"user_id"`
	TimeIn   time.Time  `gorm:"not null;index:idx_visit_logs_time_in" json:"time_in"`
	TimeOut  *time.Time `json:"time_out"`

	Person Person `gorm:"foreignKey:PersonID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"person"`
}

func (VisitLog) TableName() string { return "visit_logs" }

// Open reports whether the visit has no exit time yet.
func (v VisitLog) Open() bool { return v.TimeOut == nil }
