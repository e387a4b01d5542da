package services

import (
	"context"

	"github.com/wayfarian/groupjourney/pkg/events"
	"github.com/wayfarian/groupjourney/pkg/external"
)

// SocketPostEventAdapter adapts RideEventService to pkg/events.PostEventer,
// the optional group-journey:post-event socket message (spec §6.2). Defined
// here rather than in pkg/events because pkg/events cannot import
// pkg/services (pkg/services already imports pkg/events for fan-out); the
// dependency direction mirrors pkg/events.RideEventAdapter, which wraps this
// same service for catchup in the opposite direction.
type SocketPostEventAdapter struct {
	svc *RideEventService
}

// NewSocketPostEventAdapter creates a SocketPostEventAdapter.
func NewSocketPostEventAdapter(svc *RideEventService) *SocketPostEventAdapter {
	return &SocketPostEventAdapter{svc: svc}
}

// PostEvent implements events.PostEventer.
func (a *SocketPostEventAdapter) PostEvent(ctx context.Context, auth events.AuthIdentity, journeyID string, in events.PostEventInput) error {
	_, err := a.svc.PostEvent(ctx, external.AuthContext{
		UserID:      auth.UserID,
		DisplayName: auth.DisplayName,
		PhotoRef:    auth.PhotoRef,
	}, journeyID, PostEventParams{
		Type:      in.Type,
		Message:   in.Message,
		Latitude:  in.Latitude,
		Longitude: in.Longitude,
		MediaRef:  in.MediaRef,
		Data:      in.Data,
	})
	return err
}
