// Package events implements the EventBus and SocketGateway: WebSocket fan-out
// to per-user, per-group, and per-journey rooms, backed by PostgreSQL
// NOTIFY/LISTEN for cross-replica delivery so any server process can
// broadcast to a connection held by any other process.
package events

import "context"

// Socket event types (NOTIFY payload "type" field). None of these carry DB
// persistence of their own — the only durably queryable timeline is
// RideEvent, inserted by pkg/services and announced via
// EventTypeGroupJourneyEvent.
const (
	EventTypeGroupJourneyStarted    = "group-journey:started"
	EventTypeMemberStartedInstance  = "member:started-instance"
	EventTypeMemberLocationUpdated  = "member:location-updated"
	EventTypeMemberJourneyPaused    = "member:journey-paused"
	EventTypeMemberJourneyResumed   = "member:journey-resumed"
	EventTypeMemberJourneyCompleted = "member:journey-completed"
	EventTypeGroupJourneyCompleted  = "group-journey:completed"
	EventTypeGroupJourneyEvent      = "group-journey:event"
	EventTypeGroupArchived          = "group:archived"
	EventTypeAchievementUnlocked    = "achievement:unlocked"
)

// UserChannel returns the per-user room name. Every authenticated connection
// joins its own user channel automatically on connect (spec §4.3).
func UserChannel(userID string) string {
	return "user-" + userID
}

// GroupChannel returns the per-group room name, joined after a connection
// verifies membership in that group's active journey.
func GroupChannel(groupID string) string {
	return "group-" + groupID
}

// JourneyChannel returns the per-journey room name.
func JourneyChannel(journeyID string) string {
	return "group-journey-" + journeyID
}

// ClientMessage is the JSON structure for client → server WebSocket frames.
type ClientMessage struct {
	Action    string                 `json:"action"` // "group-journey:join", "group-journey:leave", "group-journey:post-event", "ping"
	JourneyID string                 `json:"journeyId,omitempty"`
	Type      string                 `json:"type,omitempty"` // RideEvent type, for post-event
	Message   string                 `json:"message,omitempty"`
	Latitude  *float64               `json:"latitude,omitempty"`
	Longitude *float64               `json:"longitude,omitempty"`
	MediaRef  string                 `json:"mediaRef,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// PostEventInput carries the client-supplied fields of a socket-originated
// group-journey:post-event message (spec §6.2: "optional... as an
// alternative to the POST endpoint").
type PostEventInput struct {
	Type      string
	Message   *string
	Latitude  *float64
	Longitude *float64
	MediaRef  *string
	Data      map[string]interface{}
}

// PostEventer posts a client-authored RideEvent on behalf of a socket
// message. Implemented by pkg/services via SocketPostEventAdapter: this
// package cannot import pkg/services directly (pkg/services already imports
// pkg/events for fan-out), so the dependency runs the same direction as
// CatchupQuerier/RideEventAdapter above.
type PostEventer interface {
	PostEvent(ctx context.Context, auth AuthIdentity, journeyID string, in PostEventInput) error
}

// AuthIdentity is the minimal identity events needs to attribute a
// socket-originated post-event without importing pkg/external (which would
// be a needless dependency for three fields).
type AuthIdentity struct {
	UserID      string
	DisplayName string
	PhotoRef    *string
}
