package analytics

import (
	"math"
	"time"

	"donor-impact-api/internal/models"
)

// Calendar fixes the time zone and week start used for day and week
// boundaries.
type Calendar struct {
	Location  *time.Location
	WeekStart time.Weekday
}

// DefaultCalendar uses the process local zone and Sunday-start weeks.
func DefaultCalendar() Calendar {
	return Calendar{Location: time.Local, WeekStart: time.Sunday}
}

func (c Calendar) loc() *time.Location {
	if c.Location == nil {
		return time.Local
	}
	return c.Location
}

// StartOfDay returns local midnight of the day containing t.
func (c Calendar) StartOfDay(t time.Time) time.Time {
	t = t.In(c.loc())
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, c.loc())
}

// StartOfWeek returns midnight of the most recent week start at or before t.
func (c Calendar) StartOfWeek(t time.Time) time.Time {
	day := c.StartOfDay(t)
	back := (int(day.Weekday()) - int(c.WeekStart) + 7) % 7
	return day.AddDate(0, 0, -back)
}

// StartOfMonth returns midnight of the first day of t's month.
func (c Calendar) StartOfMonth(t time.Time) time.Time {
	t = t.In(c.loc())
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, c.loc())
}

// StartOfYear returns midnight of January 1 of t's year.
func (c Calendar) StartOfYear(t time.Time) time.Time {
	t = t.In(c.loc())
	return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, c.loc())
}

// DayKey identifies the local calendar day of t.
func (c Calendar) DayKey(t time.Time) string {
	return t.In(c.loc()).Format("2006-01-02")
}

// Aggregate computes the period sums of events as seen at now.
// ImpactScore is left at zero; it needs streak and achievement state, see
// ImpactScore.
func Aggregate(events []models.DonationEvent, now time.Time, cal Calendar) models.AggregateSnapshot {
	var snap models.AggregateSnapshot
	if len(events) == 0 {
		return snap
	}

	today := cal.StartOfDay(now)
	week := cal.StartOfWeek(now)
	month := cal.StartOfMonth(now)
	year := cal.StartOfYear(now)

	var first time.Time
	for _, ev := range events {
		snap.TotalDonations++
		amount := monetaryAmount(ev)
		snap.TotalAmount += amount

		if ev.OccurredAt.IsZero() {
			continue
		}
		if first.IsZero() || ev.OccurredAt.Before(first) {
			first = ev.OccurredAt
		}
		if !ev.OccurredAt.Before(today) {
			snap.TodayAmount += amount
		}
		if !ev.OccurredAt.Before(week) {
			snap.WeekAmount += amount
		}
		if !ev.OccurredAt.Before(month) {
			snap.MonthAmount += amount
		}
		if !ev.OccurredAt.Before(year) {
			snap.YearAmount += amount
		}
	}

	days := 1
	if !first.IsZero() {
		if d := int(now.Sub(first) / (24 * time.Hour)); d > days {
			days = d
		}
	}
	snap.AvgDailyDonation = snap.TotalAmount / float64(days)
	return snap
}

// ImpactScore combines donation volume, streak and achievements into a
// single integer score.
func ImpactScore(snap models.AggregateSnapshot, streak models.StreakState, achievementCount int) int {
	return snap.TotalDonations*10 +
		int(math.Floor(snap.TotalAmount/100)) +
		streak.Current*5 +
		achievementCount*15
}

// Progress reports progress of snap against each goal in goals.
// Periods without a goal are omitted.
func Progress(snap models.AggregateSnapshot, goals models.GoalSet) []models.GoalProgress {
	out := make([]models.GoalProgress, 0, len(goals))
	for _, period := range models.GoalPeriods {
		goal, ok := goals[period]
		if !ok {
			continue
		}
		var current float64
		switch period {
		case models.PeriodDaily:
			current = snap.TodayAmount
		case models.PeriodWeekly:
			current = snap.WeekAmount
		case models.PeriodMonthly:
			current = snap.MonthAmount
		case models.PeriodYearly:
			current = snap.YearAmount
		}

		target := math.Max(goal.TargetAmount, 0)
		percent := 100.0
		if target > 0 {
			percent = math.Min(current/target*100, 100)
		}
		out = append(out, models.GoalProgress{
			Period:        period,
			TargetAmount:  target,
			CurrentAmount: current,
			Percent:       percent,
			Met:           current >= target,
		})
	}
	return out
}

// monetaryAmount enforces that only money-bearing types contribute to sums,
// whatever amount the record carries.
func monetaryAmount(ev models.DonationEvent) float64 {
	if !ev.DonationType.Monetary() {
		return 0
	}
	return ev.Amount
}
