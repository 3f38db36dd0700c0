package appointment

import "time"

const day = 24 * time.Hour

// wholeDays truncates the elapsed time between from and to to whole days.
func wholeDays(from, to time.Time) int {
	return int(to.Sub(from) / day)
}

// Allocation describes how a matched availability is consumed by a booking.
// Booked is the original record after mutation; Leading and Trailing are new
// unbooked remainders, nil when not created.
type Allocation struct {
	Booked        Availability
	Leading       *Availability
	Trailing      *Availability
	FullyConsumed bool
}

// Kind labels the allocation for metrics and event logs.
func (a Allocation) Kind() string {
	if a.FullyConsumed {
		return "full"
	}
	return "split"
}

// PlanAllocation decides how booking [start, end] consumes avail.
//
// Spans are compared in whole days, truncated. When they are equal the block
// is booked as-is, even if the appointment covers only a few hours of it. A
// leading remainder ends at 22:59 on the day before start; a trailing one
// starts at midnight on the day after end.
func PlanAllocation(avail Availability, start, end time.Time) Allocation {
	if wholeDays(start, end) == wholeDays(avail.StartTime, avail.EndTime) {
		booked := avail
		booked.IsBooked = true
		return Allocation{Booked: booked, FullyConsumed: true}
	}

	var alloc Allocation

	if wholeDays(avail.StartTime, start) > 0 {
		prev := start.Add(-day)
		alloc.Leading = &Availability{
			ProfessionalID: avail.ProfessionalID,
			StartTime:      avail.StartTime,
			EndTime:        time.Date(prev.Year(), prev.Month(), prev.Day(), 22, 59, 0, 0, prev.Location()),
		}
	}

	if next := end.Add(day); !next.After(avail.EndTime) {
		alloc.Trailing = &Availability{
			ProfessionalID: avail.ProfessionalID,
			StartTime:      time.Date(next.Year(), next.Month(), next.Day(), 0, 0, 0, 0, next.Location()),
			EndTime:        avail.EndTime,
		}
	}

	booked := avail
	booked.StartTime = start
	booked.EndTime = end
	booked.IsBooked = true
	alloc.Booked = booked

	return alloc
}
