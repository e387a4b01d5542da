// Package external defines the narrow interfaces this service needs from
// systems explicitly out of scope for the coordinator itself (spec §1):
// identity/auth, solo-journey tracking, journey history, achievements, and
// push delivery. pkg/services depends only on these interfaces; production
// wiring of real implementations happens in cmd/groupjourney, the same seam
// the teacher draws around its LLM/MCP clients in pkg/llm and pkg/mcp.
package external

import "context"

// AuthContext is the identity resolved from an inbound request's bearer
// token. Fields beyond UserID are carried for display purposes only; the
// coordinator never re-derives them.
type AuthContext struct {
	UserID      string
	DisplayName string
	PhotoRef    *string
}

// IdentityVerifier resolves a bearer token into an AuthContext. A non-nil
// error always means the token is rejected; callers must not distinguish
// error causes beyond logging them.
type IdentityVerifier interface {
	Verify(ctx context.Context, bearerToken string) (AuthContext, error)
}

// SoloJourneyGuard lets the lifecycle coordinator honor the cross-journey
// "at most one non-terminal instance per user" invariant against a user's
// solo (non-group) journeys, which this service does not itself store.
type SoloJourneyGuard interface {
	// HasActiveSoloJourney reports whether the user currently has a
	// running solo journey elsewhere in the system.
	HasActiveSoloJourney(ctx context.Context, userID string) (bool, error)
	// AutoCompleteActiveSoloJourney force-completes that solo journey; used
	// by startMyInstance when the caller passes force=true (spec §4.3).
	AutoCompleteActiveSoloJourney(ctx context.Context, userID string) error
}

// JourneyHistoryRecord is the immutable row handed to JourneyHistoryRecorder
// on instance completion. It intentionally mirrors the fields a solo-journey
// history entry would also carry, since both feed the same history system.
type JourneyHistoryRecord struct {
	UserID           string
	GroupJourneyID   string
	InstanceID       string
	TotalDistanceKm  float64
	TotalTimeSeconds float64
	AvgSpeedKmh      float64
	TopSpeedKmh      float64
}

// JourneyHistoryRecorder persists a completed instance into the user's
// journey history (the same out-of-scope system that tracks solo journeys).
type JourneyHistoryRecorder interface {
	RecordCompletedInstance(ctx context.Context, rec JourneyHistoryRecord) error
}

// AchievementEvaluator is invoked, best-effort and asynchronously, after an
// instance completes. A failure here must never fail the completion itself.
type AchievementEvaluator interface {
	EvaluateForUser(ctx context.Context, userID string, rec JourneyHistoryRecord) error
}

// PushNotification is a single outbound message queued by pkg/queue.Notifier.
type PushNotification struct {
	UserID   string
	Title    string
	Body     string
	Data     map[string]string
}

// PushSender delivers one PushNotification. Implementations must be
// idempotent-tolerant: the notifier queue is at-least-once, never exactly-once.
type PushSender interface {
	Send(ctx context.Context, n PushNotification) error
}
