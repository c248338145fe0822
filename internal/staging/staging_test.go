package staging_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"stageline/internal/domain"
	"stageline/internal/staging"
)

func at(y int, m time.Month, d, h int) time.Time {
	return time.Date(y, m, d, h, 0, 0, 0, time.UTC)
}

func project(date *time.Time) domain.Project {
	return domain.Project{ID: "p1", Status: domain.ProjectActive, StagingDate: date}
}

func TestClassifyWithoutDateIsPending(t *testing.T) {
	today := at(2024, time.March, 10, 15)
	require.Equal(t, domain.StagingPending, staging.Classify(project(nil), today))
	require.True(t, staging.IsPending(project(nil), today))
}

func TestClassifyDayBoundary(t *testing.T) {
	today := at(2024, time.March, 10, 23)

	sameDay := at(2024, time.March, 10, 1)
	require.Equal(t, domain.StagingStaged, staging.Classify(project(&sameDay), today))

	laterToday := at(2024, time.March, 10, 23)
	require.True(t, staging.IsStaged(project(&laterToday), at(2024, time.March, 10, 0)))

	tomorrow := at(2024, time.March, 11, 0)
	require.Equal(t, domain.StagingUpcoming, staging.Classify(project(&tomorrow), today))
	require.True(t, staging.IsUpcoming(project(&tomorrow), today))

	past := at(2023, time.December, 31, 12)
	require.Equal(t, domain.StagingStaged, staging.Classify(project(&past), today))
}

func TestClassifyReadsStagingDateAsCalendarDay(t *testing.T) {
	la, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	// Stored as UTC midnight on March 11; still March 11 when read in Los Angeles.
	date := at(2024, time.March, 11, 0)
	require.Equal(t, domain.StagingUpcoming, staging.Classify(project(&date), time.Date(2024, time.March, 10, 20, 0, 0, 0, la)))
	require.Equal(t, domain.StagingStaged, staging.Classify(project(&date), time.Date(2024, time.March, 11, 0, 30, 0, 0, la)))

	// A Los Angeles midnight is the next UTC day but stays March 10.
	laDate := time.Date(2024, time.March, 10, 0, 0, 0, 0, la)
	require.Equal(t, domain.StagingStaged, staging.Classify(project(&laDate), at(2024, time.March, 10, 1)))
}

func TestStateReportsArchived(t *testing.T) {
	tomorrow := at(2024, time.March, 11, 0)
	p := project(&tomorrow)
	p.Status = domain.ProjectArchived
	require.Equal(t, domain.StagingArchived, staging.State(p, at(2024, time.March, 10, 0)))
	require.Equal(t, domain.StagingUpcoming, staging.Classify(p, at(2024, time.March, 10, 0)))
}

func TestContractEnd(t *testing.T) {
	require.Nil(t, staging.ContractEnd(project(nil), 30))
	date := at(2024, time.January, 15, 10)
	end := staging.ContractEnd(project(&date), 30)
	require.NotNil(t, end)
	require.Equal(t, at(2024, time.February, 14, 0), *end)
}

func TestParseDate(t *testing.T) {
	d, err := staging.ParseDate("2024-06-01", time.UTC)
	require.NoError(t, err)
	require.Equal(t, at(2024, time.June, 1, 0), d)
	_, err = staging.ParseDate("06/01/2024", time.UTC)
	require.Error(t, err)
}
