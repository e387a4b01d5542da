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

func newLifecycle(t *testing.T) (*services.LifecycleCoordinator, *database.Client, context.Context) {
	t.Helper()
	client := database.NewTestClient(t)
	lc := services.NewLifecycleCoordinator(client.Client, cache.Disabled{}, nil, nil, nil, nil, nil)
	return lc, client, context.Background()
}

func TestStartGroupJourney_RequiresCreatorOrAdmin(t *testing.T) {
	lc, client, ctx := newLifecycle(t)

	creator := seedUser(t, ctx, client.Client, "Casey")
	rider := seedUser(t, ctx, client.Client, "Riley")
	grp := seedGroup(t, ctx, client.Client, "Weekend Crew", creator, rider)

	_, _, err := lc.StartGroupJourney(ctx, testAuth(rider), services.StartGroupJourneyParams{
		GroupID: grp.ID, Title: "Coast Ride", EndLatitude: 34.0, EndLongitude: -118.0,
	})
	require.Error(t, err)
	assert.True(t, services.Is(err, services.KindNotAuthorized))

	journey, members, err := lc.StartGroupJourney(ctx, testAuth(creator), services.StartGroupJourneyParams{
		GroupID: grp.ID, Title: "Coast Ride", EndLatitude: 34.0, EndLongitude: -118.0,
	})
	require.NoError(t, err)
	assert.Equal(t, "ACTIVE", journey.Status)
	assert.Len(t, members, 2)
}

func TestStartGroupJourney_OnlyOneActivePerGroup(t *testing.T) {
	lc, client, ctx := newLifecycle(t)

	creator := seedUser(t, ctx, client.Client, "Casey")
	grp := seedGroup(t, ctx, client.Client, "Weekend Crew", creator)

	_, _, err := lc.StartGroupJourney(ctx, testAuth(creator), services.StartGroupJourneyParams{
		GroupID: grp.ID, Title: "First Ride", EndLatitude: 34.0, EndLongitude: -118.0,
	})
	require.NoError(t, err)

	_, _, err = lc.StartGroupJourney(ctx, testAuth(creator), services.StartGroupJourneyParams{
		GroupID: grp.ID, Title: "Second Ride", EndLatitude: 35.0, EndLongitude: -119.0,
	})
	require.Error(t, err)
	assert.True(t, services.Is(err, services.KindConflict))

	// The database-side partial unique index is the final arbiter: confirm
	// only one journey row actually landed.
	count, err := client.GroupJourney.Query().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestStartMyInstance_RejectsSecondActiveInstance(t *testing.T) {
	lc, client, ctx := newLifecycle(t)

	creator := seedUser(t, ctx, client.Client, "Casey")
	grp := seedGroup(t, ctx, client.Client, "Weekend Crew", creator)

	journey, _, err := lc.StartGroupJourney(ctx, testAuth(creator), services.StartGroupJourneyParams{
		GroupID: grp.ID, Title: "Coast Ride", EndLatitude: 34.0, EndLongitude: -118.0,
	})
	require.NoError(t, err)

	_, err = lc.StartMyInstance(ctx, testAuth(creator), services.StartMyInstanceParams{
		JourneyID: journey.ID, StartLatitude: 34.05, StartLongitude: -118.1,
	})
	require.NoError(t, err)

	_, err = lc.StartMyInstance(ctx, testAuth(creator), services.StartMyInstanceParams{
		JourneyID: journey.ID, StartLatitude: 34.05, StartLongitude: -118.1,
	})
	require.Error(t, err)
	assert.True(t, services.Is(err, services.KindAlreadyStarted))
}

func TestStartMyInstance_NewJourneyAfterCompletionCreatesNewInstance(t *testing.T) {
	lc, client, ctx := newLifecycle(t)

	creator := seedUser(t, ctx, client.Client, "Casey")
	grp := seedGroup(t, ctx, client.Client, "Weekend Crew", creator)

	journey, _, err := lc.StartGroupJourney(ctx, testAuth(creator), services.StartGroupJourneyParams{
		GroupID: grp.ID, Title: "Coast Ride", EndLatitude: 34.0, EndLongitude: -118.0,
	})
	require.NoError(t, err)

	first, err := lc.StartMyInstance(ctx, testAuth(creator), services.StartMyInstanceParams{
		JourneyID: journey.ID, StartLatitude: 34.05, StartLongitude: -118.1,
	})
	require.NoError(t, err)

	_, err = lc.CompleteInstance(ctx, testAuth(creator), services.CompleteInstanceParams{InstanceID: first.InstanceID})
	require.NoError(t, err)

	// Starting a new GroupJourney so there's an active one to re-join under
	// (completing the last instance auto-archives the one above).
	journey2, _, err := lc.StartGroupJourney(ctx, testAuth(creator), services.StartGroupJourneyParams{
		GroupID: grp.ID, Title: "Second Ride", EndLatitude: 36.0, EndLongitude: -120.0,
	})
	require.NoError(t, err)

	second, err := lc.StartMyInstance(ctx, testAuth(creator), services.StartMyInstanceParams{
		JourneyID: journey2.ID, StartLatitude: 34.06, StartLongitude: -118.2,
	})
	require.NoError(t, err)
	assert.Equal(t, "ACTIVE", second.Status)
	assert.NotEqual(t, first.InstanceID, second.InstanceID)
}

func TestTransitionInstance_RejectsInvalidTransition(t *testing.T) {
	lc, client, ctx := newLifecycle(t)

	creator := seedUser(t, ctx, client.Client, "Casey")
	grp := seedGroup(t, ctx, client.Client, "Weekend Crew", creator)

	journey, _, err := lc.StartGroupJourney(ctx, testAuth(creator), services.StartGroupJourneyParams{
		GroupID: grp.ID, Title: "Coast Ride", EndLatitude: 34.0, EndLongitude: -118.0,
	})
	require.NoError(t, err)

	inst, err := lc.StartMyInstance(ctx, testAuth(creator), services.StartMyInstanceParams{
		JourneyID: journey.ID, StartLatitude: 34.05, StartLongitude: -118.1,
	})
	require.NoError(t, err)

	// Resuming an already-ACTIVE instance is invalid (it's not PAUSED).
	_, err = lc.ResumeInstance(ctx, testAuth(creator), inst.InstanceID)
	require.Error(t, err)
	assert.True(t, services.Is(err, services.KindInvalidTransition))

	paused, err := lc.PauseInstance(ctx, testAuth(creator), inst.InstanceID)
	require.NoError(t, err)
	assert.Equal(t, "PAUSED", paused.Status)

	// Pausing again fails: it's no longer ACTIVE.
	_, err = lc.PauseInstance(ctx, testAuth(creator), inst.InstanceID)
	require.Error(t, err)
	assert.True(t, services.Is(err, services.KindInvalidTransition))

	resumed, err := lc.ResumeInstance(ctx, testAuth(creator), inst.InstanceID)
	require.NoError(t, err)
	assert.Equal(t, "ACTIVE", resumed.Status)
}

func TestCompleteInstance_IsIdempotent(t *testing.T) {
	lc, client, ctx := newLifecycle(t)

	creator := seedUser(t, ctx, client.Client, "Casey")
	grp := seedGroup(t, ctx, client.Client, "Weekend Crew", creator)

	journey, _, err := lc.StartGroupJourney(ctx, testAuth(creator), services.StartGroupJourneyParams{
		GroupID: grp.ID, Title: "Coast Ride", EndLatitude: 34.0, EndLongitude: -118.0,
	})
	require.NoError(t, err)
	inst, err := lc.StartMyInstance(ctx, testAuth(creator), services.StartMyInstanceParams{
		JourneyID: journey.ID, StartLatitude: 34.05, StartLongitude: -118.1,
	})
	require.NoError(t, err)

	first, err := lc.CompleteInstance(ctx, testAuth(creator), services.CompleteInstanceParams{InstanceID: inst.InstanceID})
	require.NoError(t, err)
	assert.Equal(t, "COMPLETED", first.Status)

	second, err := lc.CompleteInstance(ctx, testAuth(creator), services.CompleteInstanceParams{InstanceID: inst.InstanceID})
	require.NoError(t, err)
	assert.Equal(t, first.TotalDistanceKm, second.TotalDistanceKm)
	assert.Equal(t, first.TotalTimeSeconds, second.TotalTimeSeconds)

	user, err := client.User.Get(ctx, creator.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, user.TotalTrips, "a second complete call must not re-increment aggregates")
}

func TestCompleteInstance_AutoClosesJourneyAndArchivesGroup(t *testing.T) {
	lc, client, ctx := newLifecycle(t)

	creator := seedUser(t, ctx, client.Client, "Casey")
	rider := seedUser(t, ctx, client.Client, "Riley")
	grp := seedGroup(t, ctx, client.Client, "Weekend Crew", creator, rider)

	journey, _, err := lc.StartGroupJourney(ctx, testAuth(creator), services.StartGroupJourneyParams{
		GroupID: grp.ID, Title: "Coast Ride", EndLatitude: 34.0, EndLongitude: -118.0,
	})
	require.NoError(t, err)

	instA, err := lc.StartMyInstance(ctx, testAuth(creator), services.StartMyInstanceParams{
		JourneyID: journey.ID, StartLatitude: 34.05, StartLongitude: -118.1,
	})
	require.NoError(t, err)
	instB, err := lc.StartMyInstance(ctx, testAuth(rider), services.StartMyInstanceParams{
		JourneyID: journey.ID, StartLatitude: 34.06, StartLongitude: -118.12,
	})
	require.NoError(t, err)

	_, err = lc.CompleteInstance(ctx, testAuth(creator), services.CompleteInstanceParams{InstanceID: instA.InstanceID})
	require.NoError(t, err)

	// Still one rider going: the journey must stay ACTIVE.
	view, err := lc.GetGroupJourney(ctx, testAuth(creator), journey.ID)
	require.NoError(t, err)
	assert.Equal(t, "ACTIVE", view.Status)

	_, err = lc.CompleteInstance(ctx, testAuth(rider), services.CompleteInstanceParams{InstanceID: instB.InstanceID})
	require.NoError(t, err)

	view, err = lc.GetGroupJourney(ctx, testAuth(creator), journey.ID)
	require.NoError(t, err)
	assert.Equal(t, "COMPLETED", view.Status)

	reloadedGroup, err := client.Group.Get(ctx, grp.ID)
	require.NoError(t, err)
	assert.False(t, reloadedGroup.IsActive, "group must be soft-archived once every instance finishes")
}

func TestGetActiveForGroup_NotFoundWhenNoneActive(t *testing.T) {
	lc, client, ctx := newLifecycle(t)

	creator := seedUser(t, ctx, client.Client, "Casey")
	grp := seedGroup(t, ctx, client.Client, "Weekend Crew", creator)

	_, err := lc.GetActiveForGroup(ctx, testAuth(creator), grp.ID)
	require.Error(t, err)
	assert.True(t, services.Is(err, services.KindNotFound))
}
