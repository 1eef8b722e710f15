package analytics

import (
	"time"

	"donor-impact-api/internal/models"
)

// Input is everything one pipeline run needs.
type Input struct {
	DonorID    string
	Direct     []models.DirectDonation
	Fundraiser []models.FundraiserDonation
	Goals      models.GoalSet
	Unlocked   []models.Achievement
	Now        time.Time
	Calendar   Calendar
	Rules      []Rule // DefaultRules when nil
}

// Result is the output of Run.
type Result struct {
	Events          []models.DonationEvent
	Snapshot        models.AggregateSnapshot
	Streak          models.StreakState
	Progress        []models.GoalProgress
	DistinctTypes   int
	NewAchievements []models.Achievement
}

// Run normalizes the donor's records and computes aggregates, streak,
// achievement unlocks and goal progress. It keeps no state between calls.
func Run(in Input) Result {
	rules := in.Rules
	if rules == nil {
		rules = DefaultRules
	}
	goals := in.Goals
	if goals == nil {
		goals = models.DefaultGoalSet()
	}

	events := Normalize(in.DonorID, in.Direct, in.Fundraiser)
	snap := Aggregate(events, in.Now, in.Calendar)
	daily, ok := goals[models.PeriodDaily]
	if !ok {
		daily = models.DefaultGoalSet()[models.PeriodDaily]
	}
	streak := Streak(events, daily.TargetAmount, in.Now, in.Calendar)
	distinct := DistinctTypes(events)

	unlocked := UnlockedSet(in.Unlocked)
	fresh := Evaluate(rules, Facts{Snapshot: snap, Streak: streak, DistinctTypes: distinct}, unlocked, in.Now)

	snap.ImpactScore = ImpactScore(snap, streak, len(unlocked)+len(fresh))

	return Result{
		Events:          events,
		Snapshot:        snap,
		Streak:          streak,
		Progress:        Progress(snap, goals),
		DistinctTypes:   distinct,
		NewAchievements: fresh,
	}
}
