package engine

import "fmt"

// Cadence constants: 60 ticks to a sim-hour, 24 hours to a day, 90 days
// to a season, four seasons to a year. The clock is presentation only —
// no deterministic step reads it.
const (
	ticksPerSimHour = 60
	hoursPerSimDay  = 24
	daysPerSeason   = 90
)

var seasonNames = [4]string{"Spring", "Summer", "Autumn", "Winter"}

// SimTime renders a tick as a human-readable simulation clock string,
// carried on snapshots so thin clients can caption frames.
func SimTime(tick uint64) string {
	minutes := tick % ticksPerSimHour
	totalHours := tick / ticksPerSimHour
	hours := totalHours % hoursPerSimDay
	totalDays := totalHours / hoursPerSimDay
	days := totalDays%daysPerSeason + 1
	seasons := totalDays / daysPerSeason
	season := seasons % 4
	years := seasons/4 + 1

	return fmt.Sprintf("%s Day %d, %d:%02d Year %d",
		seasonNames[season], days, hours, minutes, years)
}
