package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Publisher broadcasts coordinator events over NOTIFY. Every method here is
// best-effort: per spec §4.5/§7, EventBus failures are logged by the caller
// and must never fail the originating request. Publisher itself only
// returns an error; pkg/services decides whether to log-and-continue.
type Publisher struct {
	db *sql.DB
}

// NewPublisher creates a Publisher. db should be the *sql.DB backing
// database.Client, the same connection pool ride events are written
// through, so NOTIFY ordering tracks commit ordering closely enough for the
// "ordering within a room from a single emitter" guarantee in spec §5.
func NewPublisher(db *sql.DB) *Publisher {
	return &Publisher{db: db}
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// PublishGroupJourneyStarted notifies every member's user room.
func (p *Publisher) PublishGroupJourneyStarted(ctx context.Context, memberUserIDs []string, payload GroupJourneyStartedPayload) error {
	payload.Type = EventTypeGroupJourneyStarted
	payload.Timestamp = nowRFC3339()
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal GroupJourneyStartedPayload: %w", err)
	}
	var firstErr error
	for _, userID := range memberUserIDs {
		if err := p.notify(ctx, UserChannel(userID), body); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// PublishMemberStartedInstance notifies the owning group's room.
func (p *Publisher) PublishMemberStartedInstance(ctx context.Context, groupID string, payload MemberStartedInstancePayload) error {
	payload.Type = EventTypeMemberStartedInstance
	payload.Timestamp = nowRFC3339()
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal MemberStartedInstancePayload: %w", err)
	}
	return p.notify(ctx, GroupChannel(groupID), body)
}

// PublishLocationUpdated notifies the journey room with the full instance
// snapshot (spec §4.4 step 7).
func (p *Publisher) PublishLocationUpdated(ctx context.Context, journeyID string, payload MemberLocationUpdatedPayload) error {
	payload.Type = EventTypeMemberLocationUpdated
	payload.Timestamp = nowRFC3339()
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal MemberLocationUpdatedPayload: %w", err)
	}
	return p.notify(ctx, JourneyChannel(journeyID), body)
}

// PublishInstancePaused notifies the journey room.
func (p *Publisher) PublishInstancePaused(ctx context.Context, journeyID string, payload MemberJourneyStatusPayload) error {
	return p.publishJourneyStatus(ctx, journeyID, EventTypeMemberJourneyPaused, payload)
}

// PublishInstanceResumed notifies the journey room.
func (p *Publisher) PublishInstanceResumed(ctx context.Context, journeyID string, payload MemberJourneyStatusPayload) error {
	return p.publishJourneyStatus(ctx, journeyID, EventTypeMemberJourneyResumed, payload)
}

func (p *Publisher) publishJourneyStatus(ctx context.Context, journeyID, eventType string, payload MemberJourneyStatusPayload) error {
	payload.Type = eventType
	payload.Timestamp = nowRFC3339()
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal MemberJourneyStatusPayload: %w", err)
	}
	return p.notify(ctx, JourneyChannel(journeyID), body)
}

// PublishInstanceCompleted notifies the journey room.
func (p *Publisher) PublishInstanceCompleted(ctx context.Context, journeyID string, payload MemberJourneyCompletedPayload) error {
	payload.Type = EventTypeMemberJourneyCompleted
	payload.Timestamp = nowRFC3339()
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal MemberJourneyCompletedPayload: %w", err)
	}
	return p.notify(ctx, JourneyChannel(journeyID), body)
}

// PublishGroupJourneyCompleted notifies both the journey room and the
// owning group's room that the journey finished (spec §4.5
// finishGroupJourney).
func (p *Publisher) PublishGroupJourneyCompleted(ctx context.Context, journeyID, groupID string) error {
	payload := GroupJourneyCompletedPayload{
		Type:      EventTypeGroupJourneyCompleted,
		JourneyID: journeyID,
		GroupID:   groupID,
		Timestamp: nowRFC3339(),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal GroupJourneyCompletedPayload: %w", err)
	}
	var firstErr error
	if err := p.notify(ctx, JourneyChannel(journeyID), body); err != nil {
		firstErr = err
	}
	if err := p.notify(ctx, GroupChannel(groupID), body); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// PublishGroupArchived notifies the group's room that it was soft-archived.
func (p *Publisher) PublishGroupArchived(ctx context.Context, groupID string) error {
	payload := GroupArchivedPayload{
		Type:      EventTypeGroupArchived,
		GroupID:   groupID,
		Timestamp: nowRFC3339(),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal GroupArchivedPayload: %w", err)
	}
	return p.notify(ctx, GroupChannel(groupID), body)
}

// PublishRideEvent notifies the journey room of a newly persisted RideEvent.
// Persistence itself happens in pkg/services before this is called; the two
// are not wrapped in one transaction.
func (p *Publisher) PublishRideEvent(ctx context.Context, journeyID string, payload RideEventPayload) error {
	payload.Type = EventTypeGroupJourneyEvent
	payload.Timestamp = nowRFC3339()
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal RideEventPayload: %w", err)
	}
	return p.notify(ctx, JourneyChannel(journeyID), body)
}

// PublishRideEventToGroup notifies a group's room directly, bypassing the
// journey room. Used for MEMBER_COMPLETED (spec §4.5 completeInstance):
// a journey's room may already be empty of interested listeners once every
// rider has finished, but the group's room still has them.
func (p *Publisher) PublishRideEventToGroup(ctx context.Context, groupID string, payload RideEventPayload) error {
	payload.Type = EventTypeGroupJourneyEvent
	payload.Timestamp = nowRFC3339()
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal RideEventPayload: %w", err)
	}
	return p.notify(ctx, GroupChannel(groupID), body)
}

// PublishAchievementUnlocked notifies a single user's room. Called by the
// external achievement evaluator on success; failures here must not
// surface past the best-effort call site.
func (p *Publisher) PublishAchievementUnlocked(ctx context.Context, userID string, payload AchievementUnlockedPayload) error {
	payload.Type = EventTypeAchievementUnlocked
	payload.Timestamp = nowRFC3339()
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal AchievementUnlockedPayload: %w", err)
	}
	return p.notify(ctx, UserChannel(userID), body)
}

// notify sends a pre-marshaled payload via pg_notify, truncating if it would
// exceed PostgreSQL's 8000-byte NOTIFY payload limit.
func (p *Publisher) notify(ctx context.Context, channel string, payloadJSON []byte) error {
	safe, err := truncateIfNeeded(string(payloadJSON))
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, "SELECT pg_notify($1, $2)", channel, safe)
	if err != nil {
		return fmt.Errorf("pg_notify failed: %w", err)
	}
	return nil
}

// truncateIfNeeded returns the payload as-is if it fits, otherwise a minimal
// envelope carrying only routing fields; clients that need the full body
// re-fetch it via REST.
func truncateIfNeeded(payloadStr string) (string, error) {
	if len(payloadStr) <= 7900 {
		return payloadStr, nil
	}
	return buildTruncatedPayload([]byte(payloadStr))
}

func buildTruncatedPayload(payloadBytes []byte) (string, error) {
	var routing struct {
		Type      string `json:"type"`
		JourneyID string `json:"journeyId"`
	}
	if err := json.Unmarshal(payloadBytes, &routing); err != nil {
		return "", fmt.Errorf("extract routing fields for truncation: %w", err)
	}

	truncated := map[string]any{
		"type":      routing.Type,
		"journeyId": routing.JourneyID,
		"truncated": true,
	}
	truncBytes, err := json.Marshal(truncated)
	if err != nil {
		return "", fmt.Errorf("marshal truncated payload: %w", err)
	}
	return string(truncBytes), nil
}
