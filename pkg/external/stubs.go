package external

import (
	"context"
	"log/slog"
)

// LoggingPushSender is the default PushSender wired at startup: push
// delivery infrastructure (APNs/FCM) is explicitly out of scope (spec §1),
// so this just logs what would have been sent. A deployment that wants real
// delivery supplies its own PushSender satisfying the same interface.
type LoggingPushSender struct{}

// Send implements PushSender.
func (LoggingPushSender) Send(_ context.Context, n PushNotification) error {
	slog.Info("push notification (no-op sender)", "user_id", n.UserID, "title", n.Title, "body", n.Body)
	return nil
}

// NoopSoloJourneyGuard is the default SoloJourneyGuard: solo (non-group)
// journey tracking is out of scope (spec §1 Non-goals), so this reports no
// conflicting solo journey ever exists, letting startMyInstance proceed
// unconditionally. A deployment that tracks solo journeys elsewhere supplies
// a real implementation.
type NoopSoloJourneyGuard struct{}

// HasActiveSoloJourney implements SoloJourneyGuard.
func (NoopSoloJourneyGuard) HasActiveSoloJourney(_ context.Context, _ string) (bool, error) {
	return false, nil
}

// AutoCompleteActiveSoloJourney implements SoloJourneyGuard.
func (NoopSoloJourneyGuard) AutoCompleteActiveSoloJourney(_ context.Context, _ string) error {
	return nil
}

// LoggingJourneyHistoryRecorder is the default JourneyHistoryRecorder: the
// user-facing journey history feed lives in an out-of-scope system (spec
// §1). This logs the record instead of dropping it silently, so a missing
// integration is visible in the logs rather than invisible.
type LoggingJourneyHistoryRecorder struct{}

// RecordCompletedInstance implements JourneyHistoryRecorder.
func (LoggingJourneyHistoryRecorder) RecordCompletedInstance(_ context.Context, rec JourneyHistoryRecord) error {
	slog.Info("journey history record (no-op recorder)", "user_id", rec.UserID, "instance_id", rec.InstanceID, "distance_km", rec.TotalDistanceKm)
	return nil
}

// NoopAchievementEvaluator is the default AchievementEvaluator: XP/streak
// computation is out of scope (spec §1 Non-goals). Evaluation is a no-op,
// so completeInstance never emits achievement:unlocked unless a real
// evaluator is wired in.
type NoopAchievementEvaluator struct{}

// EvaluateForUser implements AchievementEvaluator.
func (NoopAchievementEvaluator) EvaluateForUser(_ context.Context, _ string, _ JourneyHistoryRecord) error {
	return nil
}
