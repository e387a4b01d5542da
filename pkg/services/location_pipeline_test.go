package services_test

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wayfarian/groupjourney/pkg/cache"
	"github.com/wayfarian/groupjourney/pkg/external"
	"github.com/wayfarian/groupjourney/pkg/models"
	"github.com/wayfarian/groupjourney/pkg/services"
	"github.com/wayfarian/groupjourney/test/database"
)

// startedInstance seeds a group with one member, starts a group journey and
// that member's instance, and returns everything a location test needs.
func startedInstance(t *testing.T, ctx context.Context, client *database.Client) (*services.LocationPipeline, external.AuthContext, *models.InstanceSnapshot) {
	t.Helper()
	lc := services.NewLifecycleCoordinator(client.Client, cache.Disabled{}, nil, nil, nil, nil, nil)
	pipeline := services.NewLocationPipeline(client.Client, cache.Disabled{}, nil)

	creator := seedUser(t, ctx, client.Client, "Casey")
	grp := seedGroup(t, ctx, client.Client, "Weekend Crew", creator)
	auth := testAuth(creator)

	journey, _, err := lc.StartGroupJourney(ctx, auth, services.StartGroupJourneyParams{
		GroupID: grp.ID, Title: "Coast Ride", EndLatitude: 34.0, EndLongitude: -118.0,
	})
	require.NoError(t, err)

	inst, err := lc.StartMyInstance(ctx, auth, services.StartMyInstanceParams{
		JourneyID: journey.ID, StartLatitude: 34.0, StartLongitude: -118.0,
	})
	require.NoError(t, err)

	return pipeline, auth, inst
}

func TestUpdateLocation_ClampsDistanceDeltaAboveCap(t *testing.T) {
	client := database.NewTestClient(t)
	ctx := context.Background()
	pipeline, auth, inst := startedInstance(t, ctx, client)

	result, err := pipeline.UpdateLocation(ctx, auth, services.UpdateLocationParams{
		InstanceID:      inst.InstanceID,
		Latitude:        34.01,
		Longitude:       -118.01,
		DistanceDeltaKm: 50.0, // far beyond the 10km per-update cap
		SpeedKmh:        40.0,
	})
	require.NoError(t, err)
	// 50km is cut to the 10km cap, then to the 250km/h rate cap over the
	// 60s first-update fallback: 60/3600*250 km.
	assert.InDelta(t, 60.0/3600*250, result.Snapshot.TotalDistanceKm, 1e-9)
	assert.NotEmpty(t, result.Warnings)
}

func TestUpdateLocation_ClampsSpeedAboveMax(t *testing.T) {
	client := database.NewTestClient(t)
	ctx := context.Background()
	pipeline, auth, inst := startedInstance(t, ctx, client)

	result, err := pipeline.UpdateLocation(ctx, auth, services.UpdateLocationParams{
		InstanceID:      inst.InstanceID,
		Latitude:        34.01,
		Longitude:       -118.01,
		DistanceDeltaKm: 1.0,
		SpeedKmh:        400.0, // beyond the 250km/h clamp
	})
	require.NoError(t, err)
	assert.Equal(t, 250.0, result.Snapshot.TopSpeedKmh)
	assert.NotEmpty(t, result.Warnings)
}

func TestUpdateLocation_AccumulatesAcrossMultipleUpdates(t *testing.T) {
	client := database.NewTestClient(t)
	ctx := context.Background()
	pipeline, auth, inst := startedInstance(t, ctx, client)

	first, err := pipeline.UpdateLocation(ctx, auth, services.UpdateLocationParams{
		InstanceID: inst.InstanceID, Latitude: 34.01, Longitude: -118.01, DistanceDeltaKm: 2.0, SpeedKmh: 30.0,
	})
	require.NoError(t, err)
	assert.Equal(t, 2.0, first.Snapshot.TotalDistanceKm)

	result, err := pipeline.UpdateLocation(ctx, auth, services.UpdateLocationParams{
		InstanceID: inst.InstanceID, Latitude: 34.02, Longitude: -118.02, DistanceDeltaKm: 3.0, SpeedKmh: 35.0,
	})
	require.NoError(t, err)
	// The second sample arrives moments after the first, so the 250km/h rate
	// cap over the real elapsed time limits how much of its 3km is added.
	elapsed := result.Snapshot.LastLocationUpdate.Sub(*first.Snapshot.LastLocationUpdate).Seconds()
	assert.InDelta(t, 2.0+math.Min(3.0, elapsed/3600*250), result.Snapshot.TotalDistanceKm, 1e-6)
}

func TestUpdateLocation_RejectsOtherUsersInstance(t *testing.T) {
	client := database.NewTestClient(t)
	ctx := context.Background()
	pipeline, _, inst := startedInstance(t, ctx, client)

	stranger := external.AuthContext{UserID: "not-the-rider"}
	_, err := pipeline.UpdateLocation(ctx, stranger, services.UpdateLocationParams{
		InstanceID: inst.InstanceID, Latitude: 34.01, Longitude: -118.01, DistanceDeltaKm: 1.0, SpeedKmh: 10.0,
	})
	require.Error(t, err)
	assert.True(t, services.Is(err, services.KindNotYourInstance))
}

func TestUpdateLocation_RejectsPausedInstance(t *testing.T) {
	client := database.NewTestClient(t)
	ctx := context.Background()
	lc := services.NewLifecycleCoordinator(client.Client, cache.Disabled{}, nil, nil, nil, nil, nil)
	pipeline, auth, inst := startedInstance(t, ctx, client)

	_, err := lc.PauseInstance(ctx, auth, inst.InstanceID)
	require.NoError(t, err)

	_, err = pipeline.UpdateLocation(ctx, auth, services.UpdateLocationParams{
		InstanceID: inst.InstanceID, Latitude: 34.01, Longitude: -118.01, DistanceDeltaKm: 1.0, SpeedKmh: 10.0,
	})
	require.Error(t, err)
	assert.True(t, services.Is(err, services.KindNotActive))
}

func TestUpdateLocation_RejectsInvalidCoordinates(t *testing.T) {
	client := database.NewTestClient(t)
	ctx := context.Background()
	pipeline, auth, inst := startedInstance(t, ctx, client)

	_, err := pipeline.UpdateLocation(ctx, auth, services.UpdateLocationParams{
		InstanceID: inst.InstanceID, Latitude: 200.0, Longitude: -118.01, DistanceDeltaKm: 1.0, SpeedKmh: 10.0,
	})
	require.Error(t, err)
	assert.True(t, services.Is(err, services.KindInvalidInput))
}
