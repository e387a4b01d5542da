package models

import "time"

// MemberSummary is how a GroupMember is rendered in API responses: the
// membership row joined with the owning User's display aggregates.
type MemberSummary struct {
	UserID            string    `json:"userId"`
	DisplayName       string    `json:"displayName"`
	PhotoRef          *string   `json:"photoRef,omitempty"`
	Role              string    `json:"role"`
	IsLocationShared  bool      `json:"isLocationShared"`
	LastLatitude      *float64  `json:"lastLatitude,omitempty"`
	LastLongitude     *float64  `json:"lastLongitude,omitempty"`
	LastSeen          *time.Time `json:"lastSeen,omitempty"`
}

// GroupJourneyView is the full state of a GroupJourney plus its live
// instances, the response body for getGroupJourney (spec §6.1).
type GroupJourneyView struct {
	ID              string             `json:"id"`
	GroupID         string             `json:"groupId"`
	CreatorID       string             `json:"creatorId"`
	Title           string             `json:"title"`
	Description     *string            `json:"description,omitempty"`
	EndLatitude     float64            `json:"endLatitude"`
	EndLongitude    float64            `json:"endLongitude"`
	Status          string             `json:"status"`
	StartedAt       time.Time          `json:"startedAt"`
	CompletedAt     *time.Time         `json:"completedAt,omitempty"`
	Instances       []InstanceSnapshot `json:"instances"`
}

// JourneySummary is the post-completion roll-up returned by
// getGroupJourneySummary (spec §4.6): per-member stats plus aggregates.
type JourneySummary struct {
	GroupJourneyID   string               `json:"groupJourneyId"`
	Status           string               `json:"status"`
	StartedAt        time.Time            `json:"startedAt"`
	CompletedAt      *time.Time           `json:"completedAt,omitempty"`
	TotalDistanceKm  float64              `json:"totalDistanceKm"`
	TotalTimeSeconds float64              `json:"totalTimeSeconds"`
	TopSpeedKmh      float64              `json:"topSpeedKmh"`
	PhotoCount       int                  `json:"photoCount"`
	Members          []MemberJourneyStat  `json:"members"`
}

// MemberJourneyStat is one participant's final stats within a completed
// GroupJourney.
type MemberJourneyStat struct {
	UserID           string  `json:"userId"`
	DisplayName      string  `json:"displayName"`
	Status           string  `json:"status"`
	TotalDistanceKm  float64 `json:"totalDistanceKm"`
	TotalTimeSeconds float64 `json:"totalTimeSeconds"`
	AvgSpeedKmh      float64 `json:"avgSpeedKmh"`
	TopSpeedKmh      float64 `json:"topSpeedKmh"`
}

// RideEventView is the API/socket rendering of a RideEvent row (spec §4.5,
// §6.2's group-journey:event payload).
type RideEventView struct {
	ID             string                 `json:"id"`
	GroupJourneyID string                 `json:"groupJourneyId"`
	InstanceID     *string                `json:"instanceId,omitempty"`
	UserID         string                 `json:"userId"`
	Type           string                 `json:"type"`
	Message        *string                `json:"message,omitempty"`
	Latitude       *float64               `json:"latitude,omitempty"`
	Longitude      *float64               `json:"longitude,omitempty"`
	MediaRef       *string                `json:"mediaRef,omitempty"`
	Data           map[string]interface{} `json:"data,omitempty"`
	CreatedAt      time.Time              `json:"createdAt"`
}
