package analytics

import (
	"time"

	"donor-impact-api/internal/models"
)

// Facts is the state achievement rules are evaluated against.
type Facts struct {
	Snapshot      models.AggregateSnapshot
	Streak        models.StreakState
	DistinctTypes int
}

// Rule unlocks an achievement once Predicate holds.
type Rule struct {
	ID          string
	Name        string
	Description string
	Icon        string
	Predicate   func(Facts) bool
}

// Achievement ids.
const (
	AchievementFirstDonation     = "first_donation"
	AchievementGenerousGiver     = "generous_giver"
	AchievementConsistentDonor   = "consistent_donor"
	AchievementCommunityHero     = "community_hero"
	AchievementMajorContributor  = "major_contributor"
	AchievementStreakMaster      = "streak_master"
	AchievementDiversityChampion = "diversity_champion"
)

// DefaultRules is the fixed achievement table.
var DefaultRules = []Rule{
	{
		ID:          AchievementFirstDonation,
		Name:        "First Donation",
		Description: "Made your first donation",
		Icon:        "🎉",
		Predicate:   func(f Facts) bool { return f.Snapshot.TotalDonations >= 1 },
	},
	{
		ID:          AchievementGenerousGiver,
		Name:        "Generous Giver",
		Description: "Donated a total of 10,000",
		Icon:        "💝",
		Predicate:   func(f Facts) bool { return f.Snapshot.TotalAmount >= 10_000 },
	},
	{
		ID:          AchievementConsistentDonor,
		Name:        "Consistent Donor",
		Description: "Met your daily goal 7 days in a row",
		Icon:        "🔥",
		Predicate:   func(f Facts) bool { return f.Streak.Current >= 7 },
	},
	{
		ID:          AchievementCommunityHero,
		Name:        "Community Hero",
		Description: "Made 50 donations",
		Icon:        "🦸",
		Predicate:   func(f Facts) bool { return f.Snapshot.TotalDonations >= 50 },
	},
	{
		ID:          AchievementMajorContributor,
		Name:        "Major Contributor",
		Description: "Donated a total of 100,000",
		Icon:        "👑",
		Predicate:   func(f Facts) bool { return f.Snapshot.TotalAmount >= 100_000 },
	},
	{
		ID:          AchievementStreakMaster,
		Name:        "Streak Master",
		Description: "Met your daily goal 30 days in a row",
		Icon:        "⚡",
		Predicate:   func(f Facts) bool { return f.Streak.Current >= 30 },
	},
	{
		ID:          AchievementDiversityChampion,
		Name:        "Diversity Champion",
		Description: "Donated 5 different kinds of help",
		Icon:        "🌈",
		Predicate:   func(f Facts) bool { return f.DistinctTypes >= 5 },
	},
}

// Evaluate returns the achievements whose rule holds for facts and whose id
// is not in unlocked, stamped with now. Rules are independent; the result
// follows rule order.
func Evaluate(rules []Rule, facts Facts, unlocked map[string]bool, now time.Time) []models.Achievement {
	var out []models.Achievement
	for _, r := range rules {
		if unlocked[r.ID] || r.Predicate == nil || !r.Predicate(facts) {
			continue
		}
		out = append(out, models.Achievement{
			ID:          r.ID,
			Name:        r.Name,
			Description: r.Description,
			Icon:        r.Icon,
			UnlockedAt:  now,
		})
	}
	return out
}

// UnlockedSet indexes achievements by id.
func UnlockedSet(achievements []models.Achievement) map[string]bool {
	set := make(map[string]bool, len(achievements))
	for _, a := range achievements {
		set[a.ID] = true
	}
	return set
}
