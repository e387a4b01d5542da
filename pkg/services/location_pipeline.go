package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wayfarian/groupjourney/ent"
	"github.com/wayfarian/groupjourney/ent/journeyinstance"
	"github.com/wayfarian/groupjourney/pkg/cache"
	"github.com/wayfarian/groupjourney/pkg/events"
	"github.com/wayfarian/groupjourney/pkg/external"
	"github.com/wayfarian/groupjourney/pkg/models"
)

const (
	maxDistanceDeltaKm    = 10.0
	maxSustainedSpeedKmh  = 250.0
	fallbackElapsedSecs   = 60.0
	maxClampedSpeedKmh    = 250.0
)

// LocationPipeline ingests location updates for an active instance: it
// validates and clamps the reported movement, accumulates the instance's
// running totals, writes through to the store and cache, and emits a
// best-effort broadcast (spec §4.4).
type LocationPipeline struct {
	client    *ent.Client
	cache     cache.Cache
	publisher *events.Publisher
}

// NewLocationPipeline creates a LocationPipeline.
func NewLocationPipeline(client *ent.Client, c cache.Cache, publisher *events.Publisher) *LocationPipeline {
	return &LocationPipeline{client: client, cache: c, publisher: publisher}
}

// UpdateLocationParams is the validated input to UpdateLocation.
type UpdateLocationParams struct {
	InstanceID      string
	Latitude        float64
	Longitude       float64
	DistanceDeltaKm float64
	SpeedKmh        float64
	RoutePoint      *models.RoutePoint
}

// UpdateLocation runs the six-step ingest pipeline (spec §4.4). Steps 1-5
// (clamping and accumulation) always apply to the in-memory instance even
// if the later persistence or broadcast step fails; per the "steps 1-5
// still apply if step 6 fails" rule, a store failure surfaces a ServerError
// to the caller but never silently drops the clamp/accumulate logic that
// ran before it.
func (p *LocationPipeline) UpdateLocation(ctx context.Context, auth external.AuthContext, params UpdateLocationParams) (*models.LocationResult, error) {
	if err := validateCoordinates(params.Latitude, params.Longitude); err != nil {
		return nil, err
	}

	inst, err := p.client.JourneyInstance.Get(ctx, params.InstanceID)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, NotFound("instance not found")
		}
		return nil, ServerErr("failed to load instance")
	}
	if inst.UserID != auth.UserID {
		return nil, NotYourInstance("instance does not belong to the caller")
	}
	if inst.Status != journeyinstance.StatusACTIVE {
		return nil, NotActive("instance is not active")
	}

	var warnings []string
	now := time.Now()

	// Step 1: per-update distance cap.
	delta := clampFloat(params.DistanceDeltaKm, 0, maxDistanceDeltaKm)
	if delta != params.DistanceDeltaKm {
		warnings = append(warnings, "distanceDeltaKm clamped to the per-update cap")
	}

	// Step 2: rate-consistency cap.
	elapsed := fallbackElapsedSecs
	if inst.LastLocationUpdate != nil {
		if e := now.Sub(*inst.LastLocationUpdate).Seconds(); e > 0 {
			elapsed = e
		}
	}
	if elapsed > 0 && (delta/elapsed)*3600 > maxSustainedSpeedKmh {
		clamped := (elapsed / 3600) * maxSustainedSpeedKmh
		warnings = append(warnings, fmt.Sprintf("distanceDeltaKm implied a sustained speed over %.0f km/h and was clamped", maxSustainedSpeedKmh))
		delta = clamped
	}

	// Step 3: speed clamp and top-speed tracking.
	speed := clampFloat(params.SpeedKmh, 0, maxClampedSpeedKmh)
	if speed != params.SpeedKmh {
		warnings = append(warnings, "speedKmh clamped to [0, 250]")
	}
	topSpeed := inst.TopSpeedKmh
	if speed > topSpeed {
		topSpeed = speed
	}

	// Step 4: cumulative totals.
	totalDistance := inst.TotalDistanceKm + delta
	totalTime := now.Sub(inst.StartTime).Seconds()
	avgSpeed := 0.0
	if totalTime > 0 {
		avgSpeed = clampFloat(totalDistance/totalTime*3600, 0, maxClampedSpeedKmh)
	}

	// Step 5: route point, append-only, no dedup.
	routePoints := inst.RoutePoints
	if params.RoutePoint != nil {
		rp := *params.RoutePoint
		rp.SpeedKmh = &speed
		routePoints = append(routePoints, routePointToMap(rp))
	}

	// Step 6: persistence. If this fails, the caller gets ServerError; the
	// clamped values computed above are never partially written.
	updated, err := inst.Update().
		SetCurrentLatitude(params.Latitude).
		SetCurrentLongitude(params.Longitude).
		SetLastLocationUpdate(now).
		SetTotalDistanceKm(totalDistance).
		SetTotalTimeSeconds(totalTime).
		SetAvgSpeedKmh(avgSpeed).
		SetTopSpeedKmh(topSpeed).
		SetRoutePoints(routePoints).
		Save(ctx)
	if err != nil {
		return nil, ServerErr("failed to persist location update")
	}

	p.cache.Set(ctx, cache.InstanceKey(updated.ID), updated.ID, cache.TTLInstance)
	p.cache.Del(ctx, cache.GroupJourneyFullKey(updated.GroupJourneyID))

	user, err := p.client.User.Get(ctx, auth.UserID)
	if err != nil {
		return nil, ServerErr("failed to load user profile")
	}
	snapshot := toInstanceSnapshot(updated, user)

	if p.publisher != nil {
		if err := p.publisher.PublishLocationUpdated(ctx, updated.GroupJourneyID, events.MemberLocationUpdatedPayload{InstanceSnapshot: snapshot}); err != nil {
			slog.Warn("failed to publish member:location-updated", "instance_id", updated.ID, "error", err)
		}
	}

	return &models.LocationResult{Snapshot: snapshot, Warnings: warnings}, nil
}
