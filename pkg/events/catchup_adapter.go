package events

import "context"

// rideEventQuerier abstracts the query method needed for catchup.
// Implemented by *services.RideEventService.
type rideEventQuerier interface {
	GetRideEventsSince(ctx context.Context, journeyID string, sinceSeq int64, limit int) ([]RideEventPayload, int64, error)
}

// RideEventAdapter wraps a rideEventQuerier to implement CatchupQuerier,
// translating journey room names back into journey ids.
type RideEventAdapter struct {
	querier rideEventQuerier
}

// NewRideEventAdapter creates a CatchupQuerier backed by the ride event service.
func NewRideEventAdapter(q rideEventQuerier) *RideEventAdapter {
	return &RideEventAdapter{querier: q}
}

// GetCatchupEvents implements CatchupQuerier. room is expected to be a
// journey room name ("group-journey-{id}"); rooms without that prefix (user
// and group rooms never carry a durable timeline) return no events.
func (a *RideEventAdapter) GetCatchupEvents(ctx context.Context, room string, sinceSeq int64, limit int) ([]CatchupEvent, error) {
	const prefix = "group-journey-"
	if len(room) <= len(prefix) || room[:len(prefix)] != prefix {
		return nil, nil
	}
	journeyID := room[len(prefix):]

	payloads, _, err := a.querier.GetRideEventsSince(ctx, journeyID, sinceSeq, limit)
	if err != nil {
		return nil, err
	}

	result := make([]CatchupEvent, 0, len(payloads))
	for _, p := range payloads {
		m := map[string]interface{}{
			"type":           p.Type,
			"id":             p.ID,
			"groupJourneyId": p.GroupJourneyID,
			"instanceId":     p.InstanceID,
			"userId":         p.UserID,
			"eventType":      p.RideEventView.Type,
			"message":        p.Message,
			"latitude":       p.Latitude,
			"longitude":      p.Longitude,
			"mediaRef":       p.MediaRef,
			"data":           p.Data,
			"createdAt":      p.CreatedAt,
			"displayName":    p.DisplayName,
		}
		result = append(result, CatchupEvent{Payload: m})
	}
	return result, nil
}
