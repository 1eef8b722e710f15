package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"donor-impact-api/internal/models"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func ptr[T any](v T) *T { return &v }

func TestInsertDonation_Idempotent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	donor := uuid.New().String()
	at := time.Date(2025, 10, 20, 12, 0, 0, 0, time.UTC)

	d := models.DirectDonation{
		ID:           uuid.New().String(),
		DonorID:      donor,
		DonationType: "money",
		Amount:       ptr(250.0),
		Timestamp:    &at,
	}

	inserted, err := db.InsertDonation(ctx, d)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = db.InsertDonation(ctx, d)
	require.NoError(t, err)
	assert.False(t, inserted)

	// no amount, no timestamp
	_, err = db.InsertDonation(ctx, models.DirectDonation{ID: uuid.New().String(), DonorID: donor, DonationType: "food"})
	require.NoError(t, err)

	got, err := db.ListDonations(ctx, donor)
	require.NoError(t, err)
	require.Len(t, got, 2)

	// NULL timestamps sort first in sqlite
	assert.Nil(t, got[0].Timestamp)
	assert.Nil(t, got[0].Amount)
	require.NotNil(t, got[1].Timestamp)
	assert.True(t, at.Equal(*got[1].Timestamp))
	assert.Equal(t, 250.0, *got[1].Amount)
}

func TestFundraiserDonations(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	donor := uuid.New().String()

	f := models.Fundraiser{ID: uuid.New().String(), Title: "School roof", CreatedAt: time.Now()}
	require.NoError(t, db.UpsertFundraiser(ctx, f))

	got, err := db.GetFundraiser(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, "School roof", got.Title)

	_, err = db.GetFundraiser(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = db.InsertFundraiserDonation(ctx, models.FundraiserDonation{
		ID:           uuid.New().String(),
		DonorID:      donor,
		FundraiserID: f.ID,
		Type:         "money",
		Amount:       ptr(20000.0),
		Timestamp:    ptr(time.Now()),
	})
	require.NoError(t, err)

	list, err := db.ListFundraiserDonations(ctx, donor)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "School roof", list[0].FundraiserTitle)
	assert.Equal(t, f.ID, list[0].FundraiserID)
}

func TestFundraiserDonation_UnknownFundraiser(t *testing.T) {
	db := setupTestDB(t)

	_, err := db.InsertFundraiserDonation(context.Background(), models.FundraiserDonation{
		ID:           uuid.New().String(),
		DonorID:      uuid.New().String(),
		FundraiserID: "does-not-exist",
	})
	assert.Error(t, err)
}

func TestGoals_DefaultsAndUpsert(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	donor := uuid.New().String()

	goals, err := db.GetGoals(ctx, donor)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultGoalSet(), goals)

	require.NoError(t, db.UpsertGoal(ctx, donor, models.PeriodDaily, models.Goal{TargetAmount: 1000, Kind: models.GoalKindAmount}))
	require.NoError(t, db.UpsertGoal(ctx, donor, models.PeriodDaily, models.Goal{TargetAmount: 1500, Kind: models.GoalKindAmount}))

	goals, err = db.GetGoals(ctx, donor)
	require.NoError(t, err)
	assert.Equal(t, 1500.0, goals[models.PeriodDaily].TargetAmount)
	assert.Equal(t, models.DefaultGoalSet()[models.PeriodWeekly], goals[models.PeriodWeekly])
}

func TestAppendAchievements_Conditional(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	donor := uuid.New().String()
	first := time.Date(2025, 10, 1, 9, 0, 0, 0, time.UTC)

	added, err := db.AppendAchievements(ctx, donor, []models.Achievement{
		{ID: "first_donation", Name: "First Donation", UnlockedAt: first},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	// a duplicate evaluation must not move the original unlock time
	added, err = db.AppendAchievements(ctx, donor, []models.Achievement{
		{ID: "first_donation", Name: "First Donation", UnlockedAt: first.AddDate(0, 0, 3)},
		{ID: "generous_giver", Name: "Generous Giver", UnlockedAt: first.AddDate(0, 0, 3)},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	list, err := db.ListAchievements(ctx, donor)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "first_donation", list[0].ID)
	assert.True(t, first.Equal(list[0].UnlockedAt))

	added, err = db.AppendAchievements(ctx, donor, nil)
	require.NoError(t, err)
	assert.Zero(t, added)
}
