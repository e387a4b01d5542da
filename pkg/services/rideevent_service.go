package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wayfarian/groupjourney/ent"
	"github.com/wayfarian/groupjourney/ent/groupjourney"
	ridevent "github.com/wayfarian/groupjourney/ent/rideevent"
	"github.com/wayfarian/groupjourney/pkg/events"
	"github.com/wayfarian/groupjourney/pkg/external"
	"github.com/wayfarian/groupjourney/pkg/models"
)

// clientPostableTypes are the RideEvent types a user may post directly via
// POST /group-journey/{id}/events (spec §6.1). MEMBER_STARTED and
// MEMBER_COMPLETED are system-generated only, by the LifecycleCoordinator.
var clientPostableTypes = map[string]ridevent.Type{
	"MESSAGE":    ridevent.TypeMESSAGE,
	"PHOTO":      ridevent.TypePHOTO,
	"CHECKPOINT": ridevent.TypeCHECKPOINT,
	"STATUS":     ridevent.TypeSTATUS,
	"EMERGENCY":  ridevent.TypeEMERGENCY,
	"CUSTOM":     ridevent.TypeCUSTOM,
}

const defaultEventsLimit = 50
const maxEventsLimit = 200

// RideEventService persists and replays the immutable RideEvent timeline
// (spec §3, §4.5, §6.1's events routes). It also satisfies the
// rideEventQuerier interface pkg/events.RideEventAdapter wraps for socket
// catchup on reconnect.
type RideEventService struct {
	client    *ent.Client
	publisher *events.Publisher
}

// NewRideEventService creates a RideEventService.
func NewRideEventService(client *ent.Client, publisher *events.Publisher) *RideEventService {
	return &RideEventService{client: client, publisher: publisher}
}

// PostEventParams is the validated input to PostEvent.
type PostEventParams struct {
	Type      string
	Message   *string
	Latitude  *float64
	Longitude *float64
	MediaRef  *string
	Data      map[string]interface{}
}

// PostEvent inserts a client-authored RideEvent and broadcasts it to the
// journey room (spec §6.1 POST events, §6.2 group-journey:event).
func (s *RideEventService) PostEvent(ctx context.Context, auth external.AuthContext, journeyID string, p PostEventParams) (*models.RideEventView, error) {
	eventType, ok := clientPostableTypes[p.Type]
	if !ok {
		return nil, InvalidInput("type", "must be one of MESSAGE, PHOTO, CHECKPOINT, STATUS, EMERGENCY, CUSTOM")
	}
	if p.Latitude != nil && (*p.Latitude < -90 || *p.Latitude > 90) {
		return nil, InvalidInput("latitude", "must be between -90 and 90")
	}
	if p.Longitude != nil && (*p.Longitude < -180 || *p.Longitude > 180) {
		return nil, InvalidInput("longitude", "must be between -180 and 180")
	}

	journey, err := s.client.GroupJourney.Query().
		Where(groupjourney.IDEQ(journeyID)).
		Only(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, NotFound("group journey not found")
		}
		return nil, ServerErr("failed to load group journey")
	}

	if _, ok, err := s.isMember(ctx, journey.GroupID, auth.UserID); err != nil {
		return nil, ServerErr("failed to verify membership")
	} else if !ok {
		return nil, NotAMember("caller is not a member of this journey's group")
	}

	evt, err := s.client.RideEvent.Create().
		SetID(uuid.New().String()).
		SetGroupJourneyID(journeyID).
		SetUserID(auth.UserID).
		SetType(eventType).
		SetNillableMessage(p.Message).
		SetNillableLatitude(p.Latitude).
		SetNillableLongitude(p.Longitude).
		SetNillableMediaRef(p.MediaRef).
		SetData(p.Data).
		Save(ctx)
	if err != nil {
		return nil, ServerErr("failed to persist ride event")
	}

	view := toRideEventView(evt)
	s.publishRideEvent(ctx, journeyID, view, auth.DisplayName)

	return &view, nil
}

// GetEvents returns the timeline for a journey since a given event id,
// newest-cursor-exclusive (spec §6.1 GET events).
func (s *RideEventService) GetEvents(ctx context.Context, auth external.AuthContext, journeyID, sinceEventID string, limit int) ([]models.RideEventView, error) {
	journey, err := s.client.GroupJourney.Query().
		Where(groupjourney.IDEQ(journeyID)).
		Only(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, NotFound("group journey not found")
		}
		return nil, ServerErr("failed to load group journey")
	}

	if _, ok, err := s.isMember(ctx, journey.GroupID, auth.UserID); err != nil {
		return nil, ServerErr("failed to verify membership")
	} else if !ok {
		return nil, NotAMember("caller is not a member of this journey's group")
	}

	if limit <= 0 {
		limit = defaultEventsLimit
	}
	if limit > maxEventsLimit {
		limit = maxEventsLimit
	}

	sinceSeq, err := s.seqForEventID(ctx, sinceEventID)
	if err != nil {
		return nil, err
	}

	rows, err := s.client.RideEvent.Query().
		Where(
			ridevent.GroupJourneyIDEQ(journeyID),
			ridevent.SeqGT(sinceSeq),
		).
		Order(ent.Asc(ridevent.FieldSeq)).
		Limit(limit).
		All(ctx)
	if err != nil {
		return nil, ServerErr("failed to list ride events")
	}

	views := make([]models.RideEventView, 0, len(rows))
	for _, e := range rows {
		views = append(views, toRideEventView(e))
	}
	return views, nil
}

// GetRideEventsSince implements the rideEventQuerier interface pkg/events's
// RideEventAdapter wraps for socket-reconnect catchup. Unlike GetEvents it
// takes a raw seq cursor (the socket layer never sees event ids) and also
// returns the highest seq observed, which the caller may use to resume.
func (s *RideEventService) GetRideEventsSince(ctx context.Context, journeyID string, sinceSeq int64, limit int) ([]events.RideEventPayload, int64, error) {
	// One row past maxEventsLimit is allowed so the catchup caller can ask
	// for catchupLimit+1 and detect overflow.
	if limit <= 0 {
		limit = maxEventsLimit
	} else if limit > maxEventsLimit+1 {
		limit = maxEventsLimit + 1
	}

	rows, err := s.client.RideEvent.Query().
		Where(
			ridevent.GroupJourneyIDEQ(journeyID),
			ridevent.SeqGT(sinceSeq),
		).
		WithUser().
		Order(ent.Asc(ridevent.FieldSeq)).
		Limit(limit).
		All(ctx)
	if err != nil {
		return nil, sinceSeq, fmt.Errorf("failed to list ride events for catchup: %w", err)
	}

	lastSeq := sinceSeq
	payloads := make([]events.RideEventPayload, 0, len(rows))
	for _, e := range rows {
		displayName := ""
		if e.Edges.User != nil {
			displayName = e.Edges.User.DisplayName
		}
		view := toRideEventView(e)
		payloads = append(payloads, events.RideEventPayload{
			Type:          events.EventTypeGroupJourneyEvent,
			RideEventView: view,
			DisplayName:   displayName,
			Timestamp:     view.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		if e.Seq > lastSeq {
			lastSeq = e.Seq
		}
	}
	return payloads, lastSeq, nil
}

// publishRideEvent broadcasts a posted/system RideEvent to its journey
// room. Best-effort: EventBus failures are logged and swallowed per spec §7.
func (s *RideEventService) publishRideEvent(ctx context.Context, journeyID string, view models.RideEventView, displayName string) {
	if s.publisher == nil {
		return
	}
	_ = s.publisher.PublishRideEvent(ctx, journeyID, events.RideEventPayload{
		RideEventView: view,
		DisplayName:   displayName,
	})
}

// seqForEventID resolves an opaque event id query parameter into the
// sequence cursor used for pagination; a blank id means "from the start".
func (s *RideEventService) seqForEventID(ctx context.Context, eventID string) (int64, error) {
	if eventID == "" {
		return 0, nil
	}
	row, err := s.client.RideEvent.Query().
		Where(ridevent.IDEQ(eventID)).
		Only(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return 0, InvalidInput("since", "unknown event id")
		}
		return 0, ServerErr("failed to resolve since cursor")
	}
	return row.Seq, nil
}

// isMember reports whether userID belongs to groupID, consulting the store
// directly — membership is never authorized from the cache alone (spec §4.1).
func (s *RideEventService) isMember(ctx context.Context, groupID, userID string) (*ent.GroupMember, bool, error) {
	return isMember(ctx, s.client, groupID, userID)
}
