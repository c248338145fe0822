// Package staging classifies projects by their staging date relative to a
// caller-supplied "today". It is the only place staging state is derived.
package staging

import (
	"time"

	"stageline/internal/domain"
)

// Classify returns Pending, Upcoming or Staged for a project. The staging
// date is a calendar date: its year, month and day are read in the zone it
// was stored with and compared to today's calendar day, so a date written in
// one zone never shifts a day when read in another. A staging date equal to
// today counts as Staged.
func Classify(p domain.Project, today time.Time) domain.StagingState {
	if p.StagingDate == nil {
		return domain.StagingPending
	}
	y, m, d := p.StagingDate.Date()
	staged := time.Date(y, m, d, 0, 0, 0, 0, today.Location())
	if staged.After(midnight(today)) {
		return domain.StagingUpcoming
	}
	return domain.StagingStaged
}

// State is Classify, except archived projects report Archived.
func State(p domain.Project, today time.Time) domain.StagingState {
	if p.Status == domain.ProjectArchived {
		return domain.StagingArchived
	}
	return Classify(p, today)
}

func IsStaged(p domain.Project, today time.Time) bool {
	return Classify(p, today) == domain.StagingStaged
}

func IsUpcoming(p domain.Project, today time.Time) bool {
	return Classify(p, today) == domain.StagingUpcoming
}

func IsPending(p domain.Project, today time.Time) bool {
	return Classify(p, today) == domain.StagingPending
}

// ContractEnd is the staging date plus the contract duration in days.
func ContractEnd(p domain.Project, days int) *time.Time {
	if p.StagingDate == nil {
		return nil
	}
	end := midnight(*p.StagingDate).AddDate(0, 0, days)
	return &end
}

// ParseDate reads a YYYY-MM-DD date as midnight in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	return time.ParseInLocation(time.DateOnly, s, loc)
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
