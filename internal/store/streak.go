package store

import (
	"sort"

	"github.com/BTreeMap/HabitLine/internal/models"
)

// ComputeStreak counts consecutive completed days ending at the most recent
// completed date. Dates are YYYY-MM-DD and may arrive unsorted or duplicated.
func ComputeStreak(completedDates []string) (streak int, last string) {
	if len(completedDates) == 0 {
		return 0, ""
	}
	dates := append([]string(nil), completedDates...)
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))

	last = dates[0]
	streak = 1
	expected := last
	for _, d := range dates[1:] {
		if d == expected {
			continue
		}
		prev, err := models.AddDays(expected, -1)
		if err != nil || d != prev {
			break
		}
		streak++
		expected = d
	}
	return streak, last
}
