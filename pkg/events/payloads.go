package events

import "github.com/wayfarian/groupjourney/pkg/models"

// GroupJourneyStartedPayload is broadcast to each member's user-{id} room
// when a journey starts (spec §6.2).
type GroupJourneyStartedPayload struct {
	Type         string  `json:"type"`
	JourneyID    string  `json:"journeyId"`
	GroupID      string  `json:"groupId"`
	GroupName    string  `json:"groupName"`
	Title        string  `json:"title"`
	Description  *string `json:"description,omitempty"`
	CreatorID    string  `json:"creatorId"`
	EndLatitude  float64 `json:"endLatitude"`
	EndLongitude float64 `json:"endLongitude"`
	Timestamp    string  `json:"timestamp"`
}

// MemberUser is the small user projection embedded in started-instance events.
type MemberUser struct {
	DisplayName string  `json:"displayName"`
	PhotoRef    *string `json:"photoRef,omitempty"`
}

// MemberStartedInstancePayload is broadcast to group-{groupId} when a
// participant begins riding.
type MemberStartedInstancePayload struct {
	Type           string     `json:"type"`
	JourneyID      string     `json:"journeyId"`
	InstanceID     string     `json:"instanceId"`
	UserID         string     `json:"userId"`
	User           MemberUser `json:"user"`
	StartLatitude  float64    `json:"startLatitude"`
	StartLongitude float64    `json:"startLongitude"`
	Timestamp      string     `json:"timestamp"`
}

// MemberLocationUpdatedPayload wraps the full instance snapshot broadcast on
// every accepted location update (spec §4.4 step 7).
type MemberLocationUpdatedPayload struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
	models.InstanceSnapshot
}

// MemberJourneyStatusPayload covers both member:journey-paused and
// member:journey-resumed, which share a shape.
type MemberJourneyStatusPayload struct {
	Type       string `json:"type"`
	InstanceID string `json:"instanceId"`
	UserID     string `json:"userId"`
	Status     string `json:"status"`
	Timestamp  string `json:"timestamp"`
}

// MemberJourneyCompletedPayload is broadcast to group-journey-{id} when a
// participant finishes.
type MemberJourneyCompletedPayload struct {
	Type            string  `json:"type"`
	InstanceID      string  `json:"instanceId"`
	UserID          string  `json:"userId"`
	DisplayName     string  `json:"displayName"`
	TotalDistanceKm float64 `json:"totalDistance"`
	DurationSeconds float64 `json:"duration"`
	Status          string  `json:"status"`
	Timestamp       string  `json:"timestamp"`
}

// GroupJourneyCompletedPayload is broadcast to both the journey room and the
// owning group's room when the journey auto-closes.
type GroupJourneyCompletedPayload struct {
	Type      string `json:"type"`
	JourneyID string `json:"journeyId"`
	GroupID   string `json:"groupId"`
	Timestamp string `json:"timestamp"`
}

// GroupArchivedPayload is broadcast once a group is soft-archived.
type GroupArchivedPayload struct {
	Type      string `json:"type"`
	GroupID   string `json:"groupId"`
	Timestamp string `json:"timestamp"`
}

// RideEventPayload is broadcast for every persisted RideEvent, carrying the
// same shape the REST timeline endpoint returns. Timestamp is set alongside
// every other payload's even though RideEventView.CreatedAt already carries
// one, for the same reason every other broadcast does: clients reconcile
// ordering by a consistently-named field without branching on event type.
type RideEventPayload struct {
	Type string `json:"type"`
	models.RideEventView
	DisplayName string `json:"displayName"`
	Timestamp   string `json:"timestamp"`
}

// AchievementUnlockedPayload is emitted by the external achievement
// evaluator (best-effort) to a single user's room.
type AchievementUnlockedPayload struct {
	Type          string `json:"type"`
	AchievementID string `json:"achievementId"`
	Title         string `json:"title"`
	Timestamp     string `json:"timestamp"`
}
