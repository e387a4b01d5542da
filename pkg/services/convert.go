package services

import (
	"time"

	"github.com/wayfarian/groupjourney/ent"
	"github.com/wayfarian/groupjourney/pkg/models"
)

// toMemberSummary renders a GroupMember row joined with its User for API
// and cache payloads (spec §3 MemberSummary).
func toMemberSummary(m *ent.GroupMember, u *ent.User) models.MemberSummary {
	return models.MemberSummary{
		UserID:           m.UserID,
		DisplayName:      u.DisplayName,
		PhotoRef:         u.PhotoRef,
		Role:             string(m.Role),
		IsLocationShared: m.IsLocationShared,
		LastLatitude:     m.LastLatitude,
		LastLongitude:    m.LastLongitude,
		LastSeen:         m.LastSeen,
	}
}

// toInstanceSnapshot renders a JourneyInstance plus its owning User as the
// full current-state view shared by getMyInstance and the
// member:location-updated broadcast (spec §4.4 step 7).
func toInstanceSnapshot(inst *ent.JourneyInstance, u *ent.User) models.InstanceSnapshot {
	return models.InstanceSnapshot{
		InstanceID:         inst.ID,
		GroupJourneyID:     inst.GroupJourneyID,
		UserID:             inst.UserID,
		DisplayName:        u.DisplayName,
		PhotoRef:           u.PhotoRef,
		Status:             string(inst.Status),
		Latitude:           inst.CurrentLatitude,
		Longitude:          inst.CurrentLongitude,
		SpeedKmh:           currentSpeed(inst),
		TotalDistanceKm:    inst.TotalDistanceKm,
		TotalTimeSeconds:   inst.TotalTimeSeconds,
		AvgSpeedKmh:        inst.AvgSpeedKmh,
		TopSpeedKmh:        inst.TopSpeedKmh,
		LastLocationUpdate: inst.LastLocationUpdate,
	}
}

// currentSpeed recovers the instantaneous speed of the most recent route
// point, since JourneyInstance itself only stores cumulative/average/top
// speed, not the last sample's speed.
func currentSpeed(inst *ent.JourneyInstance) float64 {
	if len(inst.RoutePoints) == 0 {
		return 0
	}
	last := inst.RoutePoints[len(inst.RoutePoints)-1]
	if v, ok := last["speed"]; ok {
		if f, ok := v.(float64); ok {
			return f
		}
	}
	return 0
}

// toRideEventView renders a RideEvent row as the API/socket payload shape
// (spec §3, §6.2).
func toRideEventView(e *ent.RideEvent) models.RideEventView {
	return models.RideEventView{
		ID:             e.ID,
		GroupJourneyID: e.GroupJourneyID,
		InstanceID:     e.InstanceID,
		UserID:         e.UserID,
		Type:           string(e.Type),
		Message:        e.Message,
		Latitude:       e.Latitude,
		Longitude:      e.Longitude,
		MediaRef:       e.MediaRef,
		Data:           e.Data,
		CreatedAt:      e.CreatedAt,
	}
}

// groupJourneyHeaderView renders a GroupJourney row without its instances,
// the shape cached standalone under GroupJourneyKey and extended with a
// live instance roster to build the full GroupJourneyFullKey payload.
func groupJourneyHeaderView(j *ent.GroupJourney) models.GroupJourneyView {
	return models.GroupJourneyView{
		ID:           j.ID,
		GroupID:      j.GroupID,
		CreatorID:    j.CreatorID,
		Title:        j.Title,
		Description:  j.Description,
		EndLatitude:  j.EndLatitude,
		EndLongitude: j.EndLongitude,
		Status:       string(j.Status),
		StartedAt:    j.StartedAt,
		CompletedAt:  j.CompletedAt,
	}
}

// routePointToMap converts a RoutePoint into the JSON-map shape stored in
// JourneyInstance.route_points. Stored as a generic map rather than a typed
// struct because ent's field.JSON requires a concrete Go value for schema
// introspection but the column itself is schemaless JSONB.
func routePointToMap(p models.RoutePoint) map[string]interface{} {
	m := map[string]interface{}{
		"latitude":  p.Latitude,
		"longitude": p.Longitude,
		"timestamp": p.Timestamp.Format(time.RFC3339Nano),
	}
	if p.SpeedKmh != nil {
		m["speed"] = *p.SpeedKmh
	}
	if p.Heading != nil {
		m["heading"] = *p.Heading
	}
	return m
}

// clampFloat returns v bounded to [lo, hi].
func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
