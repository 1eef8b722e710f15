// Package analytics computes donor aggregates, streaks and achievements
// from a donation log. Everything in it is a pure function of its inputs.
package analytics

import (
	"math"
	"sort"
	"strings"

	"donor-impact-api/internal/models"
)

var donationTypeAliases = map[string]models.DonationType{
	"money":               models.DonationMoney,
	"cash":                models.DonationMoney,
	"clothes":             models.DonationClothes,
	"clothing":            models.DonationClothes,
	"food":                models.DonationFood,
	"service":             models.DonationService,
	"fundraiser_donation": models.DonationFundraiser,
	"fundraiserdonation":  models.DonationFundraiser,
	"fundraiser":          models.DonationFundraiser,
	"other":               models.DonationOther,
}

// LookupDonationType maps a free-form type string to a DonationType,
// reporting whether the string was recognized.
func LookupDonationType(s string) (models.DonationType, bool) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.ReplaceAll(key, " ", "_")
	t, ok := donationTypeAliases[key]
	return t, ok
}

// ParseDonationType is LookupDonationType with unknown or empty strings
// mapped to DonationOther.
func ParseDonationType(s string) models.DonationType {
	if t, ok := LookupDonationType(s); ok {
		return t
	}
	return models.DonationOther
}

// Normalize merges direct donations and fundraiser sub-donations of one
// donor into a single list ordered by OccurredAt. Records without a
// timestamp sort first. Malformed records are dropped.
func Normalize(donorID string, direct []models.DirectDonation, fundraiser []models.FundraiserDonation) []models.DonationEvent {
	events := make([]models.DonationEvent, 0, len(direct)+len(fundraiser))

	for _, d := range direct {
		if d.ID == "" || d.DonorID != donorID {
			continue
		}
		ev := models.DonationEvent{
			ID:           d.ID,
			DonorID:      d.DonorID,
			SourceKind:   models.SourceDirect,
			DonationType: ParseDonationType(d.DonationType),
		}
		// non-monetary records keep counting whatever amount they carry
		if ev.DonationType.Monetary() {
			amount, ok := readAmount(d.Amount)
			if !ok {
				continue
			}
			ev.Amount = amount
		}
		if d.Timestamp != nil {
			ev.OccurredAt = *d.Timestamp
		}
		events = append(events, ev)
	}

	for _, f := range fundraiser {
		if f.ID == "" || f.FundraiserID == "" || f.DonorID != donorID {
			continue
		}
		amount, ok := readAmount(f.Amount)
		if !ok {
			continue
		}
		// the original type field is ignored for sub-donations
		ev := models.DonationEvent{
			ID:           f.ID,
			DonorID:      f.DonorID,
			SourceKind:   models.SourceFundraiserContribution,
			DonationType: models.DonationFundraiser,
			Amount:       amount,
			FundraiserID: f.FundraiserID,
		}
		if f.Timestamp != nil {
			ev.OccurredAt = *f.Timestamp
		}
		events = append(events, ev)
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].OccurredAt.Before(events[j].OccurredAt)
	})
	return events
}

// readAmount returns 0 for a missing amount and rejects negative or
// non-finite values.
func readAmount(a *float64) (float64, bool) {
	if a == nil {
		return 0, true
	}
	v := *a
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, false
	}
	return v, true
}

// DistinctTypes counts the donation types present in events.
func DistinctTypes(events []models.DonationEvent) int {
	seen := make(map[models.DonationType]struct{})
	for _, ev := range events {
		seen[ev.DonationType] = struct{}{}
	}
	return len(seen)
}
