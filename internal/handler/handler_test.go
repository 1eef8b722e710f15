package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"donor-impact-api/internal/analytics"
	"donor-impact-api/internal/cache"
	"donor-impact-api/internal/database"
	"donor-impact-api/internal/events"
	"donor-impact-api/internal/models"
	"donor-impact-api/internal/service"
	"donor-impact-api/internal/tracing"
)

type brokenAchievements struct {
	service.Store
}

func (brokenAchievements) AppendAchievements(context.Context, string, []models.Achievement) (int, error) {
	return 0, errors.New("disk I/O error")
}

func setupTestRouter(t *testing.T, wrap func(service.Store) service.Store) *chi.Mux {
	t.Helper()

	db, err := database.NewDB(filepath.Join(t.TempDir(), "handler.db"))
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	var store service.Store = db
	if wrap != nil {
		store = wrap(db)
	}

	opts := service.DefaultOptions()
	opts.Calendar = analytics.Calendar{Location: time.UTC, WeekStart: time.Sunday}
	opts.RetryInitial = time.Millisecond
	opts.RetryMaxElapsed = 20 * time.Millisecond

	log := zap.NewNop().Sugar()
	bus := events.NewBus(log)
	svc := service.NewService(store, cache.NewInMemoryCache(), bus, tracing.Noop(), log, opts)

	t.Cleanup(func() {
		bus.Shutdown()
		svc.Close()
		db.Close()
	})

	r := chi.NewRouter()
	NewHandler(svc).Routes(r)
	return r
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func amount(v float64) *float64 { return &v }

func TestCreateDonation_Success(t *testing.T) {
	r := setupTestRouter(t, nil)

	ts := time.Now().UTC().Add(-time.Hour)
	rr := doJSON(t, r, "POST", "/donors/donor-1/donations", models.CreateDonationRequest{
		ID:           "don-1",
		DonationType: "money",
		Amount:       amount(75),
		Timestamp:    &ts,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d. Body: %s", rr.Code, rr.Body.String())
	}

	var got models.DirectDonation
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if got.DonorID != "donor-1" || got.ID != "don-1" {
		t.Errorf("Unexpected donation %+v", got)
	}

	// replaying the same id is accepted but not appended twice
	rr = doJSON(t, r, "POST", "/donors/donor-1/donations", models.CreateDonationRequest{
		ID:           "don-1",
		DonationType: "money",
		Amount:       amount(75),
		Timestamp:    &ts,
	})
	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200 on replay, got %d", rr.Code)
	}
}

func TestCreateDonation_InvalidJSON(t *testing.T) {
	r := setupTestRouter(t, nil)

	req := httptest.NewRequest("POST", "/donors/donor-1/donations", bytes.NewBufferString("invalid json"))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rr.Code)
	}

	var response models.ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to unmarshal error response: %v", err)
	}
	if response.Error == "" {
		t.Error("Expected error message in response")
	}
}

func TestCreateDonation_EmptyBody(t *testing.T) {
	r := setupTestRouter(t, nil)

	req := httptest.NewRequest("POST", "/donors/donor-1/donations", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rr.Code)
	}
}

func TestCreateDonation_UnknownType(t *testing.T) {
	r := setupTestRouter(t, nil)

	rr := doJSON(t, r, "POST", "/donors/donor-1/donations", models.CreateDonationRequest{
		DonationType: "crypto",
		Amount:       amount(10),
	})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d. Body: %s", rr.Code, rr.Body.String())
	}
}

func TestFundraiserDonation_Flow(t *testing.T) {
	r := setupTestRouter(t, nil)

	rr := doJSON(t, r, "POST", "/fundraisers/nope/donations", models.CreateFundraiserDonationRequest{
		DonorID: "donor-1",
		Amount:  amount(10),
	})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("Expected status 404 for unknown fundraiser, got %d", rr.Code)
	}

	rr = doJSON(t, r, "POST", "/fundraisers", models.Fundraiser{ID: "fr-1", Title: "School books"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d. Body: %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, r, "POST", "/fundraisers/fr-1/donations", models.CreateFundraiserDonationRequest{
		DonorID: "donor-1",
		Amount:  amount(10),
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d. Body: %s", rr.Code, rr.Body.String())
	}

	var got models.FundraiserDonation
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if got.FundraiserTitle != "School books" {
		t.Errorf("Expected fundraiser title to be attached, got %q", got.FundraiserTitle)
	}
}

func TestGoals_GetAndUpdate(t *testing.T) {
	r := setupTestRouter(t, nil)

	rr := doJSON(t, r, "PUT", "/donors/donor-1/goals/weekly", models.UpdateGoalRequest{TargetAmount: 900})
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d. Body: %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, r, "PUT", "/donors/donor-1/goals/hourly", models.UpdateGoalRequest{TargetAmount: 900})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for unknown period, got %d", rr.Code)
	}

	rr = doJSON(t, r, "GET", "/donors/donor-1/goals", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}

	var goals models.GoalSet
	if err := json.Unmarshal(rr.Body.Bytes(), &goals); err != nil {
		t.Fatalf("Failed to unmarshal goals: %v", err)
	}
	if goals[models.PeriodWeekly].TargetAmount != 900 {
		t.Errorf("Expected weekly target 900, got %v", goals[models.PeriodWeekly].TargetAmount)
	}
	if goals[models.PeriodYearly].TargetAmount != 25000 {
		t.Errorf("Expected default yearly target 25000, got %v", goals[models.PeriodYearly].TargetAmount)
	}
}

func TestGetDashboard_WeekOfDailyGiving(t *testing.T) {
	r := setupTestRouter(t, nil)

	now := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 7; i++ {
		ts := now.AddDate(0, 0, -i)
		rr := doJSON(t, r, "POST", "/donors/donor-1/donations", models.CreateDonationRequest{
			DonationType: "money",
			Amount:       amount(100),
			Timestamp:    &ts,
		})
		if rr.Code != http.StatusCreated {
			t.Fatalf("Failed to record donation %d: %d %s", i, rr.Code, rr.Body.String())
		}
	}

	rr := doJSON(t, r, "GET", "/donors/donor-1/dashboard?now="+now.Format(time.RFC3339), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d. Body: %s", rr.Code, rr.Body.String())
	}

	var dash models.Dashboard
	if err := json.Unmarshal(rr.Body.Bytes(), &dash); err != nil {
		t.Fatalf("Failed to unmarshal dashboard: %v", err)
	}
	if dash.Streak.Current != 7 || dash.Streak.Longest != 7 {
		t.Errorf("Expected streak 7/7, got %+v", dash.Streak)
	}
	if dash.Snapshot.TotalAmount != 700 {
		t.Errorf("Expected total 700, got %v", dash.Snapshot.TotalAmount)
	}
	if len(dash.Achievements) != 2 {
		t.Errorf("Expected 2 achievements, got %+v", dash.Achievements)
	}

	rr = doJSON(t, r, "GET", "/donors/donor-1/achievements", nil)
	var stored []models.Achievement
	if err := json.Unmarshal(rr.Body.Bytes(), &stored); err != nil {
		t.Fatalf("Failed to unmarshal achievements: %v", err)
	}
	if len(stored) != 2 {
		t.Errorf("Expected 2 stored achievements, got %d", len(stored))
	}
}

func TestGetDashboard_InvalidNow(t *testing.T) {
	r := setupTestRouter(t, nil)

	rr := doJSON(t, r, "GET", "/donors/donor-1/dashboard?now=yesterday", nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rr.Code)
	}
}

func TestGetDashboard_UnlockPersistenceFailure(t *testing.T) {
	r := setupTestRouter(t, func(s service.Store) service.Store {
		return brokenAchievements{Store: s}
	})

	now := time.Now().UTC().Truncate(time.Second)
	rr := doJSON(t, r, "POST", "/donors/donor-1/donations", models.CreateDonationRequest{
		DonationType: "food",
		Timestamp:    &now,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("Failed to record donation: %d %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, r, "GET", "/donors/donor-1/dashboard?now="+now.Format(time.RFC3339), nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d. Body: %s", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("Expected Retry-After header")
	}
}

func TestGetAchievements_EmptyList(t *testing.T) {
	r := setupTestRouter(t, nil)

	rr := doJSON(t, r, "GET", "/donors/nobody/achievements", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	if got := bytes.TrimSpace(rr.Body.Bytes()); string(got) != "[]" {
		t.Errorf("Expected empty JSON array, got %s", got)
	}
}
