package reminder

import (
	"errors"
	"time"
)

const (
	StatusScheduled = "scheduled"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusFailed    = "failed"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrStorage      = errors.New("storage error")
)

// Reminder is a medication + time the user gets called about.
// Time keeps the text as supplied; RunAt is what the timer fires on.
type Reminder struct {
	ID         uint64    `gorm:"primaryKey" json:"id"`
	Medication string    `gorm:"type:text;not null" json:"medication"`
	Time       string    `gorm:"column:time;type:text;not null" json:"time"`
	RunAt      time.Time `gorm:"not null" json:"run_at"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
	Status     string    `gorm:"type:text;not null;default:'scheduled'" json:"status"`
}

func ValidStatus(s string) bool {
	switch s {
	case StatusScheduled, StatusCompleted, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed out of s.
func Terminal(s string) bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusFailed
}
