package validation

import (
	"fmt"
	"math"
	"strings"
	"time"
	"unicode"

	"donor-impact-api/internal/analytics"
	"donor-impact-api/internal/models"
)

const (
	maxIDLength = 128
	maxTitle    = 200
	maxAmount   = 1_000_000_000
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// ValidateDirectDonation checks a direct donation before it is appended to
// the log.
func ValidateDirectDonation(d models.DirectDonation) error {
	if err := ValidateID(d.ID, "id"); err != nil {
		return err
	}
	if err := ValidateID(d.DonorID, "donor_id"); err != nil {
		return err
	}
	if strings.TrimSpace(d.DonationType) == "" {
		return &ValidationError{Field: "donation_type", Message: "is required"}
	}
	t, ok := analytics.LookupDonationType(d.DonationType)
	if !ok {
		return &ValidationError{Field: "donation_type", Message: "must be one of money, clothes, food, service, other"}
	}
	if err := validateAmount(d.Amount); err != nil {
		return err
	}
	if t.Monetary() && d.Amount == nil {
		return &ValidationError{Field: "amount", Message: "is required for monetary donations"}
	}
	return validateTimestamp(d.Timestamp)
}

// ValidateFundraiserDonation checks a fundraiser sub-donation.
func ValidateFundraiserDonation(d models.FundraiserDonation) error {
	if err := ValidateID(d.ID, "id"); err != nil {
		return err
	}
	if err := ValidateID(d.DonorID, "donor_id"); err != nil {
		return err
	}
	if err := ValidateID(d.FundraiserID, "fundraiser_id"); err != nil {
		return err
	}
	if d.Amount == nil {
		return &ValidationError{Field: "amount", Message: "is required"}
	}
	if err := validateAmount(d.Amount); err != nil {
		return err
	}
	return validateTimestamp(d.Timestamp)
}

// ValidateFundraiser checks a fundraiser definition.
func ValidateFundraiser(f models.Fundraiser) error {
	if err := ValidateID(f.ID, "id"); err != nil {
		return err
	}
	title := SanitizeString(f.Title)
	if title == "" {
		return &ValidationError{Field: "title", Message: "is required"}
	}
	if len(title) > maxTitle {
		return &ValidationError{Field: "title", Message: fmt.Sprintf("cannot exceed %d characters", maxTitle)}
	}
	return nil
}

// ValidateGoal checks a goal edit.
func ValidateGoal(period models.GoalPeriod, goal models.Goal) error {
	if !period.Valid() {
		return &ValidationError{Field: "period", Message: "must be one of daily, weekly, monthly, yearly"}
	}
	if math.IsNaN(goal.TargetAmount) || math.IsInf(goal.TargetAmount, 0) {
		return &ValidationError{Field: "target_amount", Message: "must be a finite number"}
	}
	if goal.TargetAmount < 0 {
		return &ValidationError{Field: "target_amount", Message: "must be non-negative"}
	}
	if goal.TargetAmount > maxAmount {
		return &ValidationError{Field: "target_amount", Message: "exceeds maximum allowed amount"}
	}
	if goal.Kind != models.GoalKindAmount {
		return &ValidationError{Field: "kind", Message: "must be \"amount\""}
	}
	return nil
}

func validateAmount(a *float64) error {
	if a == nil {
		return nil
	}
	v := *a
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return &ValidationError{Field: "amount", Message: "must be a finite number"}
	}
	if v < 0 {
		return &ValidationError{Field: "amount", Message: "must be non-negative"}
	}
	if v > maxAmount {
		return &ValidationError{Field: "amount", Message: "exceeds maximum allowed amount"}
	}
	return nil
}

func validateTimestamp(ts *time.Time) error {
	if ts == nil {
		return nil
	}
	if ts.After(time.Now().Add(1 * time.Hour)) {
		return &ValidationError{Field: "timestamp", Message: "cannot be more than 1 hour in the future"}
	}
	if ts.Before(time.Now().AddDate(-10, 0, 0)) {
		return &ValidationError{Field: "timestamp", Message: "cannot be more than 10 years in the past"}
	}
	return nil
}

func SanitizeString(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		return r
	}, s)

	return strings.TrimSpace(s)
}

// ValidateID checks a free-form identifier such as a donor or document id.
func ValidateID(id, fieldName string) error {
	id = SanitizeString(id)
	if id == "" {
		return &ValidationError{
			Field:   fieldName,
			Message: "is required",
		}
	}

	if len(id) > maxIDLength {
		return &ValidationError{
			Field:   fieldName,
			Message: fmt.Sprintf("cannot exceed %d characters", maxIDLength),
		}
	}

	if strings.ContainsAny(id, " /\\") {
		return &ValidationError{
			Field:   fieldName,
			Message: "must not contain spaces or slashes",
		}
	}

	return nil
}

func ValidateTimeString(timeStr string) (time.Time, error) {
	if timeStr == "" {
		return time.Time{}, &ValidationError{
			Field:   "time",
			Message: "is required",
		}
	}

	t, err := time.Parse(time.RFC3339, timeStr)
	if err != nil {
		return time.Time{}, &ValidationError{
			Field:   "time",
			Message: "must be a valid RFC3339 timestamp",
		}
	}

	return t, nil
}
