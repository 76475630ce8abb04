package task

import (
	"fmt"
	"time"

	"github.com/loykin/taskvisor/internal/cronexpr"
)

// Schedule creates tasks from its template on a recurring cadence.
type Schedule struct {
	ID        string     `json:"id" mapstructure:"id"`
	Expr      string     `json:"expr" mapstructure:"expr"`
	Template  Template   `json:"template" mapstructure:"template"`
	Enabled   bool       `json:"enabled" mapstructure:"enabled"`
	CreatedAt time.Time  `json:"created_at" mapstructure:"-"`
	LastRun   *time.Time `json:"last_run,omitempty" mapstructure:"-"`
	NextRun   *time.Time `json:"next_run,omitempty" mapstructure:"-"`
	RunCount  int64      `json:"run_count" mapstructure:"-"`
}

// GetDefaults applies default values to the schedule.
func (s *Schedule) GetDefaults() {
	if s.ID == "" {
		s.ID = NewID()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	s.Template.GetDefaults()
}

// Validate validates the schedule, including its recurrence expression.
func (s *Schedule) Validate() error {
	if s.Expr == "" {
		return fmt.Errorf("schedule expression is required")
	}
	if err := cronexpr.Validate(s.Expr); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", s.Expr, err)
	}
	if err := s.Template.Validate(); err != nil {
		return fmt.Errorf("invalid schedule template: %w", err)
	}
	return nil
}

// Due reports whether the schedule should fire at now. A schedule with no
// NextRun yet is due immediately once enabled.
func (s *Schedule) Due(now time.Time) bool {
	if !s.Enabled {
		return false
	}
	if s.NextRun == nil {
		return true
	}
	return !now.Before(*s.NextRun)
}

// MarkFired records a fire at now and advances NextRun.
func (s *Schedule) MarkFired(now time.Time) error {
	next, err := cronexpr.Next(s.Expr, now)
	if err != nil {
		return err
	}
	fired := now
	s.LastRun = &fired
	s.NextRun = &next
	s.RunCount++
	return nil
}
