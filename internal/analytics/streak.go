package analytics

import (
	"time"

	"donor-impact-api/internal/models"
)

// StreakWindowDays bounds the backward scan of Streak.
const StreakWindowDays = 365

// Streak computes the current and longest runs of days whose monetary total
// met dailyGoal, looking back StreakWindowDays days from now.
//
// The current run only counts if today is met. A goal <= 0 makes every day
// met, so both values equal StreakWindowDays, but only once the donor has at
// least one timestamped event; with none the streak is zero. The whole
// window is rescanned on every call so backdated events revise past days
// correctly.
func Streak(events []models.DonationEvent, dailyGoal float64, now time.Time, cal Calendar) models.StreakState {
	if dailyGoal < 0 {
		dailyGoal = 0
	}

	totals := make(map[string]float64)
	for _, ev := range events {
		if ev.OccurredAt.IsZero() {
			continue
		}
		totals[cal.DayKey(ev.OccurredAt)] += monetaryAmount(ev)
	}
	if len(totals) == 0 {
		return models.StreakState{}
	}

	var state models.StreakState
	today := cal.StartOfDay(now)
	run := 0
	anchored := true
	for offset := 0; offset < StreakWindowDays; offset++ {
		day := today.AddDate(0, 0, -offset)
		if totals[cal.DayKey(day)] >= dailyGoal {
			run++
		} else {
			run = 0
			anchored = false
		}
		if anchored {
			state.Current = run
		}
		if run > state.Longest {
			state.Longest = run
		}
	}
	return state
}
