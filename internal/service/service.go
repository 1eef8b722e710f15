package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"donor-impact-api/internal/analytics"
	"donor-impact-api/internal/cache"
	"donor-impact-api/internal/events"
	"donor-impact-api/internal/features"
	"donor-impact-api/internal/logging"
	"donor-impact-api/internal/models"
	"donor-impact-api/internal/tracing"
	"donor-impact-api/internal/validation"
)

// ErrUnlockPersistence is returned when newly unlocked achievements could
// not be stored. The caller may retry; the write is idempotent.
var ErrUnlockPersistence = errors.New("failed to persist unlocked achievements")

// Store is the donation log plus the per-donor goal and achievement document.
type Store interface {
	InsertDonation(ctx context.Context, d models.DirectDonation) (bool, error)
	UpsertFundraiser(ctx context.Context, f models.Fundraiser) error
	GetFundraiser(ctx context.Context, id string) (models.Fundraiser, error)
	InsertFundraiserDonation(ctx context.Context, d models.FundraiserDonation) (bool, error)
	ListDonations(ctx context.Context, donorID string) ([]models.DirectDonation, error)
	ListFundraiserDonations(ctx context.Context, donorID string) ([]models.FundraiserDonation, error)
	GetGoals(ctx context.Context, donorID string) (models.GoalSet, error)
	UpsertGoal(ctx context.Context, donorID string, period models.GoalPeriod, goal models.Goal) error
	ListAchievements(ctx context.Context, donorID string) ([]models.Achievement, error)
	AppendAchievements(ctx context.Context, donorID string, achievements []models.Achievement) (int, error)
}

// Options tunes a Service.
type Options struct {
	Calendar        analytics.Calendar
	CacheTTL        time.Duration
	RetryInitial    time.Duration
	RetryMaxElapsed time.Duration
	Now             func() time.Time
	// Features switches achievement rules; nil evaluates the whole table.
	Features *features.Manager
}

// DefaultOptions returns options suitable for tests and local runs.
func DefaultOptions() Options {
	return Options{
		Calendar:        analytics.DefaultCalendar(),
		CacheTTL:        time.Minute,
		RetryInitial:    100 * time.Millisecond,
		RetryMaxElapsed: 5 * time.Second,
		Now:             time.Now,
	}
}

// Service provides business logic for the donor impact API.
type Service struct {
	store      Store
	cache      cache.Cache
	bus        *events.Bus
	tracer     *tracing.Tracer
	log        *zap.SugaredLogger
	opts       Options
	recomputer *events.Recomputer[time.Time]
}

// NewService creates a new service instance and subscribes it to the bus so
// that every write triggers a background recomputation of the donor's
// dashboard.
func NewService(store Store, c cache.Cache, bus *events.Bus, tracer *tracing.Tracer, log *zap.SugaredLogger, opts Options) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Features == nil {
		opts.Features = features.NewManager(analytics.DefaultRules)
	}
	s := &Service{
		store:  store,
		cache:  c,
		bus:    bus,
		tracer: tracer,
		log:    log,
		opts:   opts,
	}
	s.recomputer = events.NewRecomputer(s.recompute)

	bus.Subscribe(events.EventDonationRecorded, func(ctx context.Context, e events.Event) error {
		data := e.Data.(events.DonationRecordedData)
		s.recomputer.Submit(data.DonorID, e.Timestamp)
		return nil
	})
	bus.Subscribe(events.EventGoalUpdated, func(ctx context.Context, e events.Event) error {
		data := e.Data.(events.GoalUpdatedData)
		s.recomputer.Submit(data.DonorID, e.Timestamp)
		return nil
	})
	bus.Subscribe(events.EventAchievementUnlocked, func(ctx context.Context, e events.Event) error {
		data := e.Data.(events.AchievementUnlockedData)
		ids := make([]string, 0, len(data.Achievements))
		for _, a := range data.Achievements {
			ids = append(ids, a.ID)
		}
		s.log.Infow("Achievements unlocked", "donorID", data.DonorID, "achievements", ids)
		return nil
	})

	return s
}

// Close stops background recomputation.
func (s *Service) Close() {
	s.recomputer.Close()
}

// RecordDonation appends a direct donation to the donor's log. An id is
// assigned when the record has none, and a missing timestamp becomes the
// moment of recording.
func (s *Service) RecordDonation(ctx context.Context, d models.DirectDonation) (models.DirectDonation, bool, error) {
	if strings.TrimSpace(d.ID) == "" {
		d.ID = uuid.New().String()
	}
	if d.Timestamp == nil {
		recorded := s.opts.Now().UTC()
		d.Timestamp = &recorded
	}
	if err := validation.ValidateDirectDonation(d); err != nil {
		return d, false, err
	}

	inserted, err := s.store.InsertDonation(ctx, d)
	if err != nil {
		return d, false, err
	}
	if inserted {
		s.invalidate(ctx, d.DonorID)
		s.bus.PublishDonationRecorded(ctx, d.DonorID, d.ID, models.SourceDirect)
	}
	return d, inserted, nil
}

// CreateFundraiser creates or updates a fundraiser.
func (s *Service) CreateFundraiser(ctx context.Context, f models.Fundraiser) (models.Fundraiser, error) {
	if strings.TrimSpace(f.ID) == "" {
		f.ID = uuid.New().String()
	}
	f.Title = validation.SanitizeString(f.Title)
	if err := validation.ValidateFundraiser(f); err != nil {
		return f, err
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = s.opts.Now().UTC()
	}
	if err := s.store.UpsertFundraiser(ctx, f); err != nil {
		return f, err
	}
	return f, nil
}

// RecordFundraiserDonation appends a sub-donation to an existing fundraiser.
func (s *Service) RecordFundraiserDonation(ctx context.Context, d models.FundraiserDonation) (models.FundraiserDonation, bool, error) {
	if strings.TrimSpace(d.ID) == "" {
		d.ID = uuid.New().String()
	}
	if d.Timestamp == nil {
		recorded := s.opts.Now().UTC()
		d.Timestamp = &recorded
	}
	if err := validation.ValidateFundraiserDonation(d); err != nil {
		return d, false, err
	}

	f, err := s.store.GetFundraiser(ctx, d.FundraiserID)
	if err != nil {
		return d, false, fmt.Errorf("fundraiser %s: %w", d.FundraiserID, err)
	}
	d.FundraiserTitle = f.Title

	inserted, err := s.store.InsertFundraiserDonation(ctx, d)
	if err != nil {
		return d, false, err
	}
	if inserted {
		s.invalidate(ctx, d.DonorID)
		s.bus.PublishDonationRecorded(ctx, d.DonorID, d.ID, models.SourceFundraiserContribution)
	}
	return d, inserted, nil
}

// GetGoals returns the donor's goal set.
func (s *Service) GetGoals(ctx context.Context, donorID string) (models.GoalSet, error) {
	if err := validation.ValidateID(donorID, "donor_id"); err != nil {
		return nil, err
	}
	return s.store.GetGoals(ctx, donorID)
}

// UpdateGoal sets the donor's target for one period.
func (s *Service) UpdateGoal(ctx context.Context, donorID string, period models.GoalPeriod, target float64) (models.Goal, error) {
	goal := models.Goal{TargetAmount: target, Kind: models.GoalKindAmount}
	if err := validation.ValidateID(donorID, "donor_id"); err != nil {
		return goal, err
	}
	if err := validation.ValidateGoal(period, goal); err != nil {
		return goal, err
	}
	if err := s.store.UpsertGoal(ctx, donorID, period, goal); err != nil {
		return goal, err
	}

	s.invalidate(ctx, donorID)
	s.bus.PublishGoalUpdated(ctx, donorID, period, goal)
	return goal, nil
}

// Achievements returns the donor's persisted unlocked achievements.
func (s *Service) Achievements(ctx context.Context, donorID string) ([]models.Achievement, error) {
	if err := validation.ValidateID(donorID, "donor_id"); err != nil {
		return nil, err
	}
	return s.store.ListAchievements(ctx, donorID)
}

// AchievementCatalog lists every achievement rule and whether it can
// currently unlock.
func (s *Service) AchievementCatalog() []features.Flag {
	return s.opts.Features.GetAll()
}

// Dashboard returns the donor's analytics as of now. A zero now means the
// current time, in which case a cached dashboard may be served.
func (s *Service) Dashboard(ctx context.Context, donorID string, now time.Time) (models.Dashboard, error) {
	if err := validation.ValidateID(donorID, "donor_id"); err != nil {
		return models.Dashboard{}, err
	}

	if now.IsZero() {
		var cached models.Dashboard
		err := cache.GetJSON(ctx, s.cache, cache.DashboardKey(donorID), &cached)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, cache.ErrNotFound) {
			logging.FromContext(ctx).Warnw("Dashboard cache read failed", "donorID", donorID, "error", err)
		}
		return s.compute(ctx, donorID, s.opts.Now(), true)
	}
	return s.compute(ctx, donorID, now, false)
}

// compute runs the analytics pipeline on a fresh read of the donor's log and
// stores any new unlocks.
func (s *Service) compute(ctx context.Context, donorID string, now time.Time, store bool) (models.Dashboard, error) {
	ctx, span := s.tracer.StartSpan(ctx, "analytics.compute")
	defer span.End()
	span.SetAttributes(attribute.String("donor.id", donorID))

	direct, err := s.store.ListDonations(ctx, donorID)
	if err != nil {
		return models.Dashboard{}, err
	}
	fundraiser, err := s.store.ListFundraiserDonations(ctx, donorID)
	if err != nil {
		return models.Dashboard{}, err
	}
	goals, err := s.store.GetGoals(ctx, donorID)
	if err != nil {
		return models.Dashboard{}, err
	}
	unlocked, err := s.store.ListAchievements(ctx, donorID)
	if err != nil {
		return models.Dashboard{}, err
	}

	res := analytics.Run(analytics.Input{
		DonorID:    donorID,
		Direct:     direct,
		Fundraiser: fundraiser,
		Goals:      goals,
		Unlocked:   unlocked,
		Now:        now,
		Calendar:   s.opts.Calendar,
		Rules:      s.opts.Features.Rules(),
	})
	// unlocks are stored with the service clock, not a caller-chosen instant
	unlockedAt := s.opts.Now()
	for i := range res.NewAchievements {
		res.NewAchievements[i].UnlockedAt = unlockedAt
	}
	span.SetAttributes(
		attribute.Int("events.count", len(res.Events)),
		attribute.Int("achievements.new", len(res.NewAchievements)),
	)

	if err := s.persistUnlocks(ctx, donorID, res.NewAchievements); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "unlock persistence failed")
		return models.Dashboard{}, err
	}

	dash := models.Dashboard{
		DonorID:         donorID,
		Snapshot:        res.Snapshot,
		Streak:          res.Streak,
		Progress:        res.Progress,
		DistinctTypes:   res.DistinctTypes,
		Achievements:    append(append([]models.Achievement{}, unlocked...), res.NewAchievements...),
		NewAchievements: res.NewAchievements,
		ComputedAt:      now,
	}
	if dash.NewAchievements == nil {
		dash.NewAchievements = []models.Achievement{}
	}

	if store {
		if err := cache.SetJSON(ctx, s.cache, cache.DashboardKey(donorID), dash, s.opts.CacheTTL); err != nil {
			logging.FromContext(ctx).Warnw("Dashboard cache write failed", "donorID", donorID, "error", err)
		}
	}
	return dash, nil
}

// persistUnlocks appends achievements with exponential backoff. The append
// skips ids already stored, so retries and concurrent evaluations are safe.
func (s *Service) persistUnlocks(ctx context.Context, donorID string, fresh []models.Achievement) error {
	if len(fresh) == 0 {
		return nil
	}
	log := logging.FromContext(ctx)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.opts.RetryInitial
	b.MaxElapsedTime = s.opts.RetryMaxElapsed

	var added int
	op := func() error {
		n, err := s.store.AppendAchievements(ctx, donorID, fresh)
		if err != nil {
			return err
		}
		added = n
		return nil
	}
	notify := func(err error, wait time.Duration) {
		log.Warnw("Retrying achievement persistence", "donorID", donorID, "wait", wait, "error", err)
	}

	if err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify); err != nil {
		ids := make([]string, 0, len(fresh))
		for _, a := range fresh {
			ids = append(ids, a.ID)
		}
		log.Errorw("Giving up on achievement persistence, needs reconciliation",
			"donorID", donorID, "achievements", ids, "error", err)
		return fmt.Errorf("%w: %w", ErrUnlockPersistence, err)
	}

	if added > 0 {
		s.bus.PublishAchievementUnlocked(ctx, donorID, fresh)
	}
	return nil
}

func (s *Service) invalidate(ctx context.Context, donorID string) {
	if err := s.cache.Delete(ctx, cache.DashboardKey(donorID)); err != nil {
		logging.FromContext(ctx).Warnw("Dashboard cache invalidation failed", "donorID", donorID, "error", err)
	}
}

// recompute is the background job behind the bus subscriptions. It warms
// the dashboard cache with a fresh computation.
func (s *Service) recompute(ctx context.Context, donorID string, requestedAt time.Time) {
	ctx = logging.WithLogger(ctx, s.log)
	if _, err := s.compute(ctx, donorID, s.opts.Now(), true); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		s.log.Errorw("Background recomputation failed", "donorID", donorID, "requestedAt", requestedAt, "error", err)
		return
	}
	s.log.Debugw("Dashboard recomputed", "donorID", donorID, "lag", s.opts.Now().Sub(requestedAt))
}
