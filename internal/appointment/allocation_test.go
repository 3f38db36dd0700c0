package appointment

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(s string) time.Time {
	t, err := time.Parse("2006-01-02T15:04", s)
	if err != nil {
		panic(err)
	}
	return t
}

func block(start, end string) Availability {
	return Availability{
		ID:             uuid.New(),
		ProfessionalID: uuid.New(),
		StartTime:      at(start),
		EndTime:        at(end),
	}
}

func TestWholeDaysTruncates(t *testing.T) {
	assert.Equal(t, 0, wholeDays(at("2024-01-12T09:00"), at("2024-01-12T23:59")))
	assert.Equal(t, 1, wholeDays(at("2024-01-12T09:00"), at("2024-01-13T09:00")))
	assert.Equal(t, 1, wholeDays(at("2024-01-12T09:00"), at("2024-01-14T08:59")))
	assert.Equal(t, 10, wholeDays(at("2024-01-10T00:00"), at("2024-01-20T23:59")))
}

func TestPlanAllocationSplitsBothSides(t *testing.T) {
	avail := block("2024-01-10T00:00", "2024-01-20T23:59")

	alloc := PlanAllocation(avail, at("2024-01-12T09:00"), at("2024-01-12T10:00"))

	assert.False(t, alloc.FullyConsumed)
	assert.Equal(t, "split", alloc.Kind())

	require.NotNil(t, alloc.Leading)
	assert.Equal(t, at("2024-01-10T00:00"), alloc.Leading.StartTime)
	assert.Equal(t, at("2024-01-11T22:59"), alloc.Leading.EndTime)
	assert.False(t, alloc.Leading.IsBooked)
	assert.Equal(t, avail.ProfessionalID, alloc.Leading.ProfessionalID)

	require.NotNil(t, alloc.Trailing)
	assert.Equal(t, at("2024-01-13T00:00"), alloc.Trailing.StartTime)
	assert.Equal(t, at("2024-01-20T23:59"), alloc.Trailing.EndTime)
	assert.False(t, alloc.Trailing.IsBooked)

	assert.Equal(t, avail.ID, alloc.Booked.ID)
	assert.Equal(t, at("2024-01-12T09:00"), alloc.Booked.StartTime)
	assert.Equal(t, at("2024-01-12T10:00"), alloc.Booked.EndTime)
	assert.True(t, alloc.Booked.IsBooked)
}

func TestPlanAllocationEqualSpansConsumeWholeBlock(t *testing.T) {
	tests := []struct {
		name       string
		avail      Availability
		start, end string
	}{
		{"exact multi-day span", block("2024-01-10T00:00", "2024-01-12T00:00"), "2024-01-10T00:00", "2024-01-12T00:00"},
		{"same-day hours truncate to zero days", block("2024-01-12T08:00", "2024-01-12T17:00"), "2024-01-12T09:00", "2024-01-12T10:00"},
		{"two-day block, two-day booking offset by hours", block("2024-01-10T00:00", "2024-01-12T20:00"), "2024-01-10T06:00", "2024-01-12T07:00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alloc := PlanAllocation(tt.avail, at(tt.start), at(tt.end))

			assert.True(t, alloc.FullyConsumed)
			assert.Nil(t, alloc.Leading)
			assert.Nil(t, alloc.Trailing)
			assert.True(t, alloc.Booked.IsBooked)
			assert.Equal(t, tt.avail.StartTime, alloc.Booked.StartTime, "block keeps its start")
			assert.Equal(t, tt.avail.EndTime, alloc.Booked.EndTime, "block keeps its end")
		})
	}
}

func TestPlanAllocationLeadingOnly(t *testing.T) {
	avail := block("2024-01-10T00:00", "2024-01-12T23:00")

	alloc := PlanAllocation(avail, at("2024-01-12T09:00"), at("2024-01-12T10:00"))

	require.NotNil(t, alloc.Leading)
	assert.Equal(t, at("2024-01-11T22:59"), alloc.Leading.EndTime)
	assert.Nil(t, alloc.Trailing, "end+1d falls past the block")
}

func TestPlanAllocationTrailingOnly(t *testing.T) {
	avail := block("2024-01-12T08:00", "2024-01-15T18:00")

	alloc := PlanAllocation(avail, at("2024-01-12T09:00"), at("2024-01-12T10:00"))

	assert.Nil(t, alloc.Leading, "gap to the appointment is under a day")
	require.NotNil(t, alloc.Trailing)
	assert.Equal(t, at("2024-01-13T00:00"), alloc.Trailing.StartTime)
	assert.Equal(t, at("2024-01-15T18:00"), alloc.Trailing.EndTime)
}

func TestPlanAllocationTrailingBoundaryIsInclusive(t *testing.T) {
	avail := block("2024-01-12T08:00", "2024-01-14T10:00")

	alloc := PlanAllocation(avail, at("2024-01-12T09:00"), at("2024-01-13T10:00"))

	require.NotNil(t, alloc.Trailing, "end+1d equal to block end still leaves a remainder")
	assert.Equal(t, at("2024-01-14T00:00"), alloc.Trailing.StartTime)
}

// Remainders and the booked slice never overlap and never leave the original window.
func TestPlanAllocationStaysInsideOriginal(t *testing.T) {
	windows := []struct{ availStart, availEnd, start, end string }{
		{"2024-01-10T00:00", "2024-01-20T23:59", "2024-01-12T09:00", "2024-01-12T10:00"},
		{"2024-01-10T00:00", "2024-01-20T23:59", "2024-01-10T00:00", "2024-01-11T12:00"},
		{"2024-01-10T00:00", "2024-01-20T23:59", "2024-01-19T09:00", "2024-01-20T23:59"},
		{"2024-03-01T07:30", "2024-03-09T18:00", "2024-03-04T13:15", "2024-03-06T09:45"},
		{"2024-02-27T00:00", "2024-03-02T12:00", "2024-02-29T10:00", "2024-02-29T11:00"},
	}

	for _, w := range windows {
		avail := block(w.availStart, w.availEnd)
		alloc := PlanAllocation(avail, at(w.start), at(w.end))

		parts := []Availability{alloc.Booked}
		if alloc.Leading != nil {
			parts = append(parts, *alloc.Leading)
		}
		if alloc.Trailing != nil {
			parts = append(parts, *alloc.Trailing)
		}

		var total time.Duration
		for i, p := range parts {
			assert.False(t, p.StartTime.Before(avail.StartTime), "part %d starts before the block", i)
			assert.False(t, p.EndTime.After(avail.EndTime), "part %d ends after the block", i)
			assert.False(t, p.EndTime.Before(p.StartTime), "part %d is inverted", i)
			total += p.EndTime.Sub(p.StartTime)
			for j := i + 1; j < len(parts); j++ {
				q := parts[j]
				overlap := p.StartTime.Before(q.EndTime) && q.StartTime.Before(p.EndTime)
				assert.False(t, overlap, "parts %d and %d overlap", i, j)
			}
		}
		assert.LessOrEqual(t, total, avail.EndTime.Sub(avail.StartTime))
	}
}
