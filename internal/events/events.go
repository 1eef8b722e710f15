package events

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"donor-impact-api/internal/models"
)

// EventType represents the type of event.
type EventType string

const (
	// EventDonationRecorded is emitted when a direct or fundraiser donation is appended to the log
	EventDonationRecorded EventType = "donation.recorded"
	// EventGoalUpdated is emitted when a donor edits one of their goals
	EventGoalUpdated EventType = "goal.updated"
	// EventAchievementUnlocked is emitted after new achievements were persisted
	EventAchievementUnlocked EventType = "achievement.unlocked"
)

// Event represents an event in the system.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Data      any
}

// DonationRecordedData contains data for donation recorded events.
type DonationRecordedData struct {
	DonorID    string
	DonationID string
	Source     models.SourceKind
}

// GoalUpdatedData contains data for goal updated events.
type GoalUpdatedData struct {
	DonorID string
	Period  models.GoalPeriod
	Goal    models.Goal
}

// AchievementUnlockedData contains data for achievement unlocked events.
type AchievementUnlockedData struct {
	DonorID      string
	Achievements []models.Achievement
}

// Handler is a function that handles events.
type Handler func(ctx context.Context, event Event) error

// Bus dispatches events to subscribed handlers in the background.
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	enabled  bool
	log      *zap.SugaredLogger
	wg       sync.WaitGroup
}

// NewBus creates a new event bus.
func NewBus(log *zap.SugaredLogger) *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
		enabled:  true,
		log:      log,
	}
}

// Subscribe subscribes a handler to a specific event type.
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.enabled {
		return
	}
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Publish hands the event to every subscribed handler on its own goroutine.
// Handler errors are logged.
func (b *Bus) Publish(ctx context.Context, eventType EventType, data any) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.enabled {
		return
	}
	handlers := b.handlers[eventType]
	if len(handlers) == 0 {
		return
	}

	event := Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}

	// request contexts end with the response; handlers outlive them
	ctx = context.WithoutCancel(ctx)
	for _, handler := range handlers {
		b.wg.Add(1)
		go func(h Handler) {
			defer b.wg.Done()
			if err := h(ctx, event); err != nil {
				b.log.Errorw("Event handler failed", "event", eventType, "error", err)
			}
		}(handler)
	}
}

// PublishDonationRecorded publishes a donation recorded event.
func (b *Bus) PublishDonationRecorded(ctx context.Context, donorID, donationID string, source models.SourceKind) {
	b.Publish(ctx, EventDonationRecorded, DonationRecordedData{
		DonorID:    donorID,
		DonationID: donationID,
		Source:     source,
	})
}

// PublishGoalUpdated publishes a goal updated event.
func (b *Bus) PublishGoalUpdated(ctx context.Context, donorID string, period models.GoalPeriod, goal models.Goal) {
	b.Publish(ctx, EventGoalUpdated, GoalUpdatedData{DonorID: donorID, Period: period, Goal: goal})
}

// PublishAchievementUnlocked publishes an achievement unlocked event.
func (b *Bus) PublishAchievementUnlocked(ctx context.Context, donorID string, achievements []models.Achievement) {
	b.Publish(ctx, EventAchievementUnlocked, AchievementUnlockedData{
		DonorID:      donorID,
		Achievements: achievements,
	})
}

// Shutdown stops accepting events and waits for running handlers.
func (b *Bus) Shutdown() {
	b.mu.Lock()
	b.enabled = false
	b.handlers = make(map[EventType][]Handler)
	b.mu.Unlock()

	b.wg.Wait()
}
