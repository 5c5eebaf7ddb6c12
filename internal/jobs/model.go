package jobs

import "time"

// action is the in-memory timer armed for one scheduled reminder.
type action struct {
	ReminderID uint64
	Medication string
	RunAt      time.Time

	timer *time.Timer
}
