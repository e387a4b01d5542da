package services_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wayfarian/groupjourney/pkg/cache"
	"github.com/wayfarian/groupjourney/pkg/services"
	"github.com/wayfarian/groupjourney/test/database"
)

func newRideEvents(t *testing.T) (*services.RideEventService, *services.LifecycleCoordinator, *database.Client, context.Context) {
	t.Helper()
	client := database.NewTestClient(t)
	return services.NewRideEventService(client.Client, nil),
		services.NewLifecycleCoordinator(client.Client, cache.Disabled{}, nil, nil, nil, nil, nil),
		client,
		context.Background()
}

func TestPostEvent_RejectsUnpostableType(t *testing.T) {
	svc, lc, client, ctx := newRideEvents(t)

	creator := seedUser(t, ctx, client.Client, "Casey")
	grp := seedGroup(t, ctx, client.Client, "Weekend Crew", creator)
	journey, _, err := lc.StartGroupJourney(ctx, testAuth(creator), services.StartGroupJourneyParams{
		GroupID: grp.ID, Title: "Coast Ride", EndLatitude: 34.0, EndLongitude: -118.0,
	})
	require.NoError(t, err)

	_, err = svc.PostEvent(ctx, testAuth(creator), journey.ID, services.PostEventParams{Type: "MEMBER_STARTED"})
	require.Error(t, err)
	assert.True(t, services.Is(err, services.KindInvalidInput))
}

func TestPostEvent_RejectsNonMember(t *testing.T) {
	svc, lc, client, ctx := newRideEvents(t)

	creator := seedUser(t, ctx, client.Client, "Casey")
	outsider := seedUser(t, ctx, client.Client, "Outsider")
	grp := seedGroup(t, ctx, client.Client, "Weekend Crew", creator)
	journey, _, err := lc.StartGroupJourney(ctx, testAuth(creator), services.StartGroupJourneyParams{
		GroupID: grp.ID, Title: "Coast Ride", EndLatitude: 34.0, EndLongitude: -118.0,
	})
	require.NoError(t, err)

	_, err = svc.PostEvent(ctx, testAuth(outsider), journey.ID, services.PostEventParams{Type: "MESSAGE"})
	require.Error(t, err)
	assert.True(t, services.Is(err, services.KindNotAMember))
}

func TestPostEvent_RejectsOutOfRangeCoordinates(t *testing.T) {
	svc, lc, client, ctx := newRideEvents(t)

	creator := seedUser(t, ctx, client.Client, "Casey")
	grp := seedGroup(t, ctx, client.Client, "Weekend Crew", creator)
	journey, _, err := lc.StartGroupJourney(ctx, testAuth(creator), services.StartGroupJourneyParams{
		GroupID: grp.ID, Title: "Coast Ride", EndLatitude: 34.0, EndLongitude: -118.0,
	})
	require.NoError(t, err)

	bogus := 200.0
	_, err = svc.PostEvent(ctx, testAuth(creator), journey.ID, services.PostEventParams{
		Type: "CHECKPOINT", Latitude: &bogus,
	})
	require.Error(t, err)
	assert.True(t, services.Is(err, services.KindInvalidInput))
}

func TestPostEvent_PersistsAndIsListedByGetEvents(t *testing.T) {
	svc, lc, client, ctx := newRideEvents(t)

	creator := seedUser(t, ctx, client.Client, "Casey")
	grp := seedGroup(t, ctx, client.Client, "Weekend Crew", creator)
	journey, _, err := lc.StartGroupJourney(ctx, testAuth(creator), services.StartGroupJourneyParams{
		GroupID: grp.ID, Title: "Coast Ride", EndLatitude: 34.0, EndLongitude: -118.0,
	})
	require.NoError(t, err)

	msg := "rest stop"
	posted, err := svc.PostEvent(ctx, testAuth(creator), journey.ID, services.PostEventParams{
		Type: "MESSAGE", Message: &msg,
	})
	require.NoError(t, err)
	assert.Equal(t, "MESSAGE", posted.Type)

	views, err := svc.GetEvents(ctx, testAuth(creator), journey.ID, "", 0)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, posted.ID, views[0].ID)
}

func TestGetEvents_SinceCursorExcludesAlreadySeen(t *testing.T) {
	svc, lc, client, ctx := newRideEvents(t)

	creator := seedUser(t, ctx, client.Client, "Casey")
	grp := seedGroup(t, ctx, client.Client, "Weekend Crew", creator)
	journey, _, err := lc.StartGroupJourney(ctx, testAuth(creator), services.StartGroupJourneyParams{
		GroupID: grp.ID, Title: "Coast Ride", EndLatitude: 34.0, EndLongitude: -118.0,
	})
	require.NoError(t, err)

	first, err := svc.PostEvent(ctx, testAuth(creator), journey.ID, services.PostEventParams{Type: "STATUS"})
	require.NoError(t, err)
	second, err := svc.PostEvent(ctx, testAuth(creator), journey.ID, services.PostEventParams{Type: "STATUS"})
	require.NoError(t, err)

	views, err := svc.GetEvents(ctx, testAuth(creator), journey.ID, first.ID, 0)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, second.ID, views[0].ID)
}

func TestGetEvents_RejectsUnknownSinceID(t *testing.T) {
	svc, lc, client, ctx := newRideEvents(t)

	creator := seedUser(t, ctx, client.Client, "Casey")
	grp := seedGroup(t, ctx, client.Client, "Weekend Crew", creator)
	journey, _, err := lc.StartGroupJourney(ctx, testAuth(creator), services.StartGroupJourneyParams{
		GroupID: grp.ID, Title: "Coast Ride", EndLatitude: 34.0, EndLongitude: -118.0,
	})
	require.NoError(t, err)

	_, err = svc.GetEvents(ctx, testAuth(creator), journey.ID, "no-such-event", 0)
	require.Error(t, err)
	assert.True(t, services.Is(err, services.KindInvalidInput))
}

func TestGetRideEventsSince_ReturnsDisplayNameAndAdvancesSeq(t *testing.T) {
	svc, lc, client, ctx := newRideEvents(t)

	creator := seedUser(t, ctx, client.Client, "Casey")
	grp := seedGroup(t, ctx, client.Client, "Weekend Crew", creator)
	journey, _, err := lc.StartGroupJourney(ctx, testAuth(creator), services.StartGroupJourneyParams{
		GroupID: grp.ID, Title: "Coast Ride", EndLatitude: 34.0, EndLongitude: -118.0,
	})
	require.NoError(t, err)

	_, err = svc.PostEvent(ctx, testAuth(creator), journey.ID, services.PostEventParams{Type: "MESSAGE"})
	require.NoError(t, err)

	payloads, lastSeq, err := svc.GetRideEventsSince(ctx, journey.ID, 0, 50)
	require.NoError(t, err)
	require.Len(t, payloads, 1)
	assert.Equal(t, "Casey", payloads[0].DisplayName)
	assert.Greater(t, lastSeq, int64(0))
}

func TestPostEvent_RejectsUnknownJourney(t *testing.T) {
	svc, _, client, ctx := newRideEvents(t)
	creator := seedUser(t, ctx, client.Client, "Casey")

	_, err := svc.PostEvent(ctx, testAuth(creator), "not-a-real-journey-id", services.PostEventParams{Type: "MESSAGE"})
	require.Error(t, err)
	assert.True(t, services.Is(err, services.KindNotFound))
}
