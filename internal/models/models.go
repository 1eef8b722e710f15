package models

import "time"

// SourceKind tells where a normalized donation event came from.
type SourceKind string

const (
	SourceDirect                 SourceKind = "direct"
	SourceFundraiserContribution SourceKind = "fundraiser_contribution"
)

// DonationType is the normalized kind of a donation.
type DonationType string

const (
	DonationMoney      DonationType = "money"
	DonationClothes    DonationType = "clothes"
	DonationFood       DonationType = "food"
	DonationService    DonationType = "service"
	DonationFundraiser DonationType = "fundraiser_donation"
	DonationOther      DonationType = "other"
)

// Monetary reports whether amounts of this type count toward sums.
func (t DonationType) Monetary() bool {
	return t == DonationMoney || t == DonationFundraiser
}

// DirectDonation is a raw donation record as stored in the donation log.
type DirectDonation struct {
	ID           string     `json:"id"`
	DonorID      string     `json:"donor_id"`
	DonationType string     `json:"donation_type"`
	Amount       *float64   `json:"amount,omitempty"`
	OrphanageID  string     `json:"orphanage_id,omitempty"`
	Timestamp    *time.Time `json:"timestamp,omitempty"`
}

// FundraiserDonation is a raw sub-donation recorded against a fundraiser.
type FundraiserDonation struct {
	ID              string     `json:"id"`
	DonorID         string     `json:"donor_id"`
	FundraiserID    string     `json:"fundraiser_id"`
	FundraiserTitle string     `json:"fundraiser_title,omitempty"`
	Type            string     `json:"type,omitempty"`
	Amount          *float64   `json:"amount,omitempty"`
	Timestamp       *time.Time `json:"timestamp,omitempty"`
}

// Fundraiser is a campaign that donors contribute to.
type Fundraiser struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	OrphanageID string    `json:"orphanage_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// DonationEvent is the uniform event the analytics pipeline works on.
// A zero OccurredAt means the source record carried no timestamp.
type DonationEvent struct {
	ID           string       `json:"id"`
	DonorID      string       `json:"donor_id"`
	SourceKind   SourceKind   `json:"source_kind"`
	DonationType DonationType `json:"donation_type"`
	Amount       float64      `json:"amount"`
	OccurredAt   time.Time    `json:"occurred_at"`
	FundraiserID string       `json:"fundraiser_id,omitempty"`
}

// GoalPeriod names the window a goal applies to.
type GoalPeriod string

const (
	PeriodDaily   GoalPeriod = "daily"
	PeriodWeekly  GoalPeriod = "weekly"
	PeriodMonthly GoalPeriod = "monthly"
	PeriodYearly  GoalPeriod = "yearly"
)

// GoalPeriods lists the periods in display order.
var GoalPeriods = []GoalPeriod{PeriodDaily, PeriodWeekly, PeriodMonthly, PeriodYearly}

// Valid reports whether p is a known period.
func (p GoalPeriod) Valid() bool {
	switch p {
	case PeriodDaily, PeriodWeekly, PeriodMonthly, PeriodYearly:
		return true
	}
	return false
}

// Goal is a donor's target for one period.
type Goal struct {
	TargetAmount float64 `json:"target_amount"`
	Kind         string  `json:"kind"` // always "amount"
}

// GoalKindAmount is the only goal kind.
const GoalKindAmount = "amount"

// GoalSet holds one goal per period.
type GoalSet map[GoalPeriod]Goal

// DefaultGoalSet is used for donors that never edited their goals.
func DefaultGoalSet() GoalSet {
	return GoalSet{
		PeriodDaily:   {TargetAmount: 100, Kind: GoalKindAmount},
		PeriodWeekly:  {TargetAmount: 500, Kind: GoalKindAmount},
		PeriodMonthly: {TargetAmount: 2000, Kind: GoalKindAmount},
		PeriodYearly:  {TargetAmount: 25000, Kind: GoalKindAmount},
	}
}

// AggregateSnapshot is the derived per-donor totals. It is never persisted.
type AggregateSnapshot struct {
	TodayAmount      float64 `json:"today_amount"`
	WeekAmount       float64 `json:"week_amount"`
	MonthAmount      float64 `json:"month_amount"`
	YearAmount       float64 `json:"year_amount"`
	TotalAmount      float64 `json:"total_amount"`
	TotalDonations   int     `json:"total_donations"`
	AvgDailyDonation float64 `json:"avg_daily_donation"`
	ImpactScore      int     `json:"impact_score"`
}

// StreakState holds the current and longest daily-goal runs.
type StreakState struct {
	Current int `json:"current"`
	Longest int `json:"longest"`
}

// GoalProgress is the progress toward one period's goal.
type GoalProgress struct {
	Period        GoalPeriod `json:"period"`
	TargetAmount  float64    `json:"target_amount"`
	CurrentAmount float64    `json:"current_amount"`
	Percent       float64    `json:"percent"` // 0-100
	Met           bool       `json:"met"`
}

// Achievement is an unlocked achievement.
type Achievement struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Icon        string    `json:"icon"`
	UnlockedAt  time.Time `json:"unlocked_at"`
}

// Dashboard is the full analytics result for a donor.
type Dashboard struct {
	DonorID         string            `json:"donor_id"`
	Snapshot        AggregateSnapshot `json:"snapshot"`
	Streak          StreakState       `json:"streak"`
	Progress        []GoalProgress    `json:"progress"`
	DistinctTypes   int               `json:"distinct_types"`
	Achievements    []Achievement     `json:"achievements"`
	NewAchievements []Achievement     `json:"new_achievements"`
	ComputedAt      time.Time         `json:"computed_at"`
}

// CreateDonationRequest is the body of POST /donors/{donor_id}/donations.
type CreateDonationRequest struct {
	ID           string     `json:"id,omitempty"`
	DonationType string     `json:"donation_type"`
	Amount       *float64   `json:"amount,omitempty"`
	OrphanageID  string     `json:"orphanage_id,omitempty"`
	Timestamp    *time.Time `json:"timestamp,omitempty"`
}

// CreateFundraiserDonationRequest is the body of POST /fundraisers/{fundraiser_id}/donations.
type CreateFundraiserDonationRequest struct {
	ID        string     `json:"id,omitempty"`
	DonorID   string     `json:"donor_id"`
	Type      string     `json:"type,omitempty"`
	Amount    *float64   `json:"amount,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// UpdateGoalRequest is the body of PUT /donors/{donor_id}/goals/{period}.
type UpdateGoalRequest struct {
	TargetAmount float64 `json:"target_amount"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}
