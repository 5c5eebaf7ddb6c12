package reminder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

type Store struct {
	DB *gorm.DB
}

func (s *Store) Create(ctx context.Context, medication, timeText string, runAt time.Time) (uint64, error) {
	medication = strings.TrimSpace(medication)
	timeText = strings.TrimSpace(timeText)
	if medication == "" || timeText == "" {
		return 0, ErrInvalidInput
	}

	r := Reminder{
		Medication: medication,
		Time:       timeText,
		RunAt:      runAt,
		CreatedAt:  time.Now(),
		Status:     StatusScheduled,
	}
	if err := s.DB.WithContext(ctx).Create(&r).Error; err != nil {
		return 0, fmt.Errorf("%w: create reminder: %w", ErrStorage, err)
	}
	return r.ID, nil
}

func (s *Store) Get(ctx context.Context, id uint64) (Reminder, error) {
	var r Reminder
	if err := s.DB.WithContext(ctx).Where("id = ?", id).First(&r).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Reminder{}, ErrNotFound
		}
		return Reminder{}, fmt.Errorf("%w: get reminder %d: %w", ErrStorage, id, err)
	}
	return r, nil
}

// List returns every reminder, newest first.
func (s *Store) List(ctx context.Context) ([]Reminder, error) {
	var rows []Reminder
	if err := s.DB.WithContext(ctx).Order("created_at desc").Order("id desc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("%w: list reminders: %w", ErrStorage, err)
	}
	return rows, nil
}

func (s *Store) ListByStatus(ctx context.Context, status string) ([]Reminder, error) {
	var rows []Reminder
	if err := s.DB.WithContext(ctx).Where("status = ?", status).Order("run_at asc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("%w: list %s reminders: %w", ErrStorage, status, err)
	}
	return rows, nil
}

// SetStatus overwrites the status. Unknown ids are a no-op.
func (s *Store) SetStatus(ctx context.Context, id uint64, status string) error {
	if !ValidStatus(status) {
		return ErrInvalidInput
	}
	err := s.DB.WithContext(ctx).Model(&Reminder{}).
		Where("id = ?", id).
		Update("status", status).Error
	if err != nil {
		return fmt.Errorf("%w: set status %d: %w", ErrStorage, id, err)
	}
	return nil
}

// Transition moves id from one status to another only if it is currently in
// from. It reports whether the row changed.
func (s *Store) Transition(ctx context.Context, id uint64, from, to string) (bool, error) {
	res := s.DB.WithContext(ctx).Model(&Reminder{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return false, fmt.Errorf("%w: transition %d %s->%s: %w", ErrStorage, id, from, to, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// Delete removes the row. Unknown ids are a no-op.
func (s *Store) Delete(ctx context.Context, id uint64) error {
	if err := s.DB.WithContext(ctx).Where("id = ?", id).Delete(&Reminder{}).Error; err != nil {
		return fmt.Errorf("%w: delete reminder %d: %w", ErrStorage, id, err)
	}
	return nil
}

// FindLatestScheduled returns the newest scheduled reminder whose medication
// contains fragment, case-insensitively. Matching happens in Go so that
// non-ASCII names fold the same way on SQLite and Postgres.
func (s *Store) FindLatestScheduled(ctx context.Context, fragment string) (Reminder, error) {
	fragment = strings.ToLower(strings.TrimSpace(fragment))
	if fragment == "" {
		return Reminder{}, ErrInvalidInput
	}

	var rows []Reminder
	err := s.DB.WithContext(ctx).
		Where("status = ?", StatusScheduled).
		Order("created_at desc").Order("id desc").
		Find(&rows).Error
	if err != nil {
		return Reminder{}, fmt.Errorf("%w: find by medication: %w", ErrStorage, err)
	}

	for _, r := range rows {
		if strings.Contains(strings.ToLower(r.Medication), fragment) {
			return r, nil
		}
	}
	return Reminder{}, ErrNotFound
}
