package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/wayfarian/groupjourney/ent"
	"github.com/wayfarian/groupjourney/ent/group"
	"github.com/wayfarian/groupjourney/ent/groupjourney"
	"github.com/wayfarian/groupjourney/ent/groupmember"
	"github.com/wayfarian/groupjourney/ent/journeyinstance"
	ridevent "github.com/wayfarian/groupjourney/ent/rideevent"
	"github.com/wayfarian/groupjourney/pkg/cache"
	"github.com/wayfarian/groupjourney/pkg/events"
	"github.com/wayfarian/groupjourney/pkg/external"
	"github.com/wayfarian/groupjourney/pkg/models"
	"github.com/wayfarian/groupjourney/pkg/queue"
)

// LifecycleCoordinator enforces the GroupJourney/JourneyInstance state
// machines (spec §4.5): start, pause, resume, complete, and the auto-close
// rule that finishes a journey and soft-archives its group once every
// participant has finished.
type LifecycleCoordinator struct {
	client       *ent.Client
	cache        cache.Cache
	publisher    *events.Publisher
	notifier     *queue.Notifier
	solo         external.SoloJourneyGuard
	history      external.JourneyHistoryRecorder
	achievements external.AchievementEvaluator
}

// NewLifecycleCoordinator creates a LifecycleCoordinator. publisher and
// notifier may be nil in tests that don't exercise fan-out; solo, history,
// and achievements are the out-of-scope collaborators from spec §1/§6 and
// may also be nil, in which case their guards/side effects are skipped.
func NewLifecycleCoordinator(
	client *ent.Client,
	c cache.Cache,
	publisher *events.Publisher,
	notifier *queue.Notifier,
	solo external.SoloJourneyGuard,
	history external.JourneyHistoryRecorder,
	achievements external.AchievementEvaluator,
) *LifecycleCoordinator {
	return &LifecycleCoordinator{
		client:       client,
		cache:        c,
		publisher:    publisher,
		notifier:     notifier,
		solo:         solo,
		history:      history,
		achievements: achievements,
	}
}

func validateCoordinates(lat, lng float64) error {
	if lat < -90 || lat > 90 {
		return InvalidInput("latitude", "must be between -90 and 90")
	}
	if lng < -180 || lng > 180 {
		return InvalidInput("longitude", "must be between -180 and 180")
	}
	return nil
}

func findMember(members []*ent.GroupMember, userID string) (*ent.GroupMember, bool) {
	for _, m := range members {
		if m.UserID == userID {
			return m, true
		}
	}
	return nil, false
}

// StartGroupJourneyParams is the validated input to StartGroupJourney.
type StartGroupJourneyParams struct {
	GroupID      string
	Title        string
	Description  *string
	EndLatitude  float64
	EndLongitude float64
}

// StartGroupJourney creates a GroupJourney for a group (spec §4.5). Returns
// the journey header view plus the group's member roster.
func (c *LifecycleCoordinator) StartGroupJourney(ctx context.Context, auth external.AuthContext, p StartGroupJourneyParams) (*models.GroupJourneyView, []models.MemberSummary, error) {
	if p.GroupID == "" {
		return nil, nil, InvalidInput("groupId", "required")
	}
	if err := validateCoordinates(p.EndLatitude, p.EndLongitude); err != nil {
		return nil, nil, err
	}
	title := p.Title
	if title == "" {
		title = "Group Journey"
	}

	grp, err := c.client.Group.Query().
		Where(group.IDEQ(p.GroupID)).
		WithMembers(func(q *ent.GroupMemberQuery) { q.WithUser() }).
		Only(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, nil, NotFound("group not found")
		}
		return nil, nil, ServerErr("failed to load group")
	}

	caller, ok := findMember(grp.Edges.Members, auth.UserID)
	if !ok {
		return nil, nil, NotAMember("caller is not a member of this group")
	}
	if caller.Role != groupmember.RoleCREATOR && caller.Role != groupmember.RoleADMIN {
		return nil, nil, NotAuthorized("only the group creator or an admin may start a journey")
	}

	// The cache is consulted only as a hint for logging/observability; the
	// reject decision itself is never taken on a cache hit alone (spec §4.5:
	// "check cache, confirm via store"). group:{id}:active-journey carries an
	// hour TTL and is only invalidated on finishGroupJourney, so trusting a
	// cache hit here would turn a stale pointer into an up-to-one-hour false
	// Conflict on every legitimate start.
	if active, hit := c.activeJourneyCached(ctx, p.GroupID); hit && active {
		slog.Debug("active-journey cache hit, confirming via store before rejecting", "group_id", p.GroupID)
	}
	exists, err := c.client.GroupJourney.Query().
		Where(groupjourney.GroupIDEQ(p.GroupID), groupjourney.StatusEQ(groupjourney.StatusACTIVE)).
		Exist(ctx)
	if err != nil {
		return nil, nil, ServerErr("failed to check for an active journey")
	}
	if exists {
		return nil, nil, Conflict("an active journey already exists for this group")
	}

	journey, err := c.client.GroupJourney.Create().
		SetID(uuid.New().String()).
		SetGroupID(p.GroupID).
		SetCreatorID(auth.UserID).
		SetTitle(title).
		SetNillableDescription(p.Description).
		SetEndLatitude(p.EndLatitude).
		SetEndLongitude(p.EndLongitude).
		SetStatus(groupjourney.StatusACTIVE).
		Save(ctx)
	if err != nil {
		if ent.IsConstraintError(err) {
			return nil, nil, Conflict("an active journey already exists for this group")
		}
		return nil, nil, ServerErr("failed to create group journey")
	}

	c.cache.Set(ctx, cache.GroupActiveJourneyKey(p.GroupID),
		map[string]string{"id": journey.ID, "status": string(journey.Status)}, cache.TTLGroupActiveJourney)
	header := groupJourneyHeaderView(journey)
	c.cache.Set(ctx, cache.GroupJourneyKey(journey.ID), header, cache.TTLGroupJourney)

	members := make([]models.MemberSummary, 0, len(grp.Edges.Members))
	memberIDs := make([]string, 0, len(grp.Edges.Members))
	for _, m := range grp.Edges.Members {
		members = append(members, toMemberSummary(m, m.Edges.User))
		memberIDs = append(memberIDs, m.UserID)
	}

	if c.publisher != nil {
		if err := c.publisher.PublishGroupJourneyStarted(ctx, memberIDs, events.GroupJourneyStartedPayload{
			JourneyID:    journey.ID,
			GroupID:      p.GroupID,
			GroupName:    grp.Name,
			Title:        journey.Title,
			Description:  journey.Description,
			CreatorID:    journey.CreatorID,
			EndLatitude:  journey.EndLatitude,
			EndLongitude: journey.EndLongitude,
		}); err != nil {
			slog.Warn("failed to publish group-journey:started", "journey_id", journey.ID, "error", err)
		}
	}

	if c.notifier != nil {
		for _, m := range grp.Edges.Members {
			if m.UserID == auth.UserID {
				continue
			}
			c.notifier.Enqueue(external.PushNotification{
				UserID: m.UserID,
				Title:  grp.Name,
				Body:   fmt.Sprintf("%s started a new journey", auth.DisplayName),
				Data:   map[string]string{"journeyId": journey.ID, "groupId": p.GroupID},
			})
		}
	}

	return &header, members, nil
}

// StartMyInstanceParams is the validated input to StartMyInstance.
type StartMyInstanceParams struct {
	JourneyID      string
	StartLatitude  float64
	StartLongitude float64
	StartAddress   *string
	Force          bool
}

// StartMyInstance begins the caller's participation in an active journey,
// reactivating a paused or terminal instance instead of inserting a second
// row for the same (journey, user) (spec §4.5).
func (c *LifecycleCoordinator) StartMyInstance(ctx context.Context, auth external.AuthContext, p StartMyInstanceParams) (*models.InstanceSnapshot, error) {
	if p.JourneyID == "" {
		return nil, InvalidInput("journeyId", "required")
	}
	if err := validateCoordinates(p.StartLatitude, p.StartLongitude); err != nil {
		return nil, err
	}

	journey, err := c.client.GroupJourney.Query().Where(groupjourney.IDEQ(p.JourneyID)).Only(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, NotFound("group journey not found")
		}
		return nil, ServerErr("failed to load group journey")
	}
	if journey.Status != groupjourney.StatusACTIVE {
		return nil, Conflict("group journey is not active")
	}

	if _, ok, err := isMember(ctx, c.client, journey.GroupID, auth.UserID); err != nil {
		return nil, ServerErr("failed to verify membership")
	} else if !ok {
		return nil, NotAMember("caller is not a member of this journey's group")
	}

	if c.solo != nil {
		active, err := c.solo.HasActiveSoloJourney(ctx, auth.UserID)
		if err != nil {
			return nil, ServerErr("failed to check solo journey state")
		}
		if active {
			if !p.Force {
				return nil, Conflict("an active solo journey is already in progress; retry with force=true")
			}
			if err := c.solo.AutoCompleteActiveSoloJourney(ctx, auth.UserID); err != nil {
				return nil, ServerErr("failed to auto-complete active solo journey")
			}
		}
	}

	// Invariant I-INSTANCE (spec §3): at most one non-terminal instance per
	// userId across ALL journeys, not just this one. Reactivating a paused
	// or terminal instance in THIS journey is still fine and handled below;
	// it's a live instance in a DIFFERENT journey that must block the start.
	// Backed by the (user_id, status) index on journeyinstance.
	blocked, err := c.client.JourneyInstance.Query().
		Where(
			journeyinstance.UserIDEQ(auth.UserID),
			journeyinstance.StatusIn(journeyinstance.StatusACTIVE, journeyinstance.StatusPAUSED),
			journeyinstance.GroupJourneyIDNEQ(p.JourneyID),
		).
		Exist(ctx)
	if err != nil {
		return nil, ServerErr("failed to check for other active instances")
	}
	if blocked {
		return nil, Conflict("caller already has a non-terminal instance in another journey")
	}

	now := time.Now()
	initialPoint := routePointToMap(models.RoutePoint{Latitude: p.StartLatitude, Longitude: p.StartLongitude, Timestamp: now})

	existing, err := c.client.JourneyInstance.Query().
		Where(journeyinstance.GroupJourneyIDEQ(p.JourneyID), journeyinstance.UserIDEQ(auth.UserID)).
		Only(ctx)

	var inst *ent.JourneyInstance
	switch {
	case err != nil && !ent.IsNotFound(err):
		return nil, ServerErr("failed to load existing instance")
	case err == nil && existing.Status == journeyinstance.StatusACTIVE:
		return nil, AlreadyStarted("an active instance already exists for this journey")
	case err == nil:
		inst, err = existing.Update().
			SetStatus(journeyinstance.StatusACTIVE).
			SetCurrentLatitude(p.StartLatitude).
			SetCurrentLongitude(p.StartLongitude).
			SetRoutePoints(append(existing.RoutePoints, initialPoint)).
			ClearEndTime().
			Save(ctx)
		if err != nil {
			return nil, ServerErr("failed to reactivate instance")
		}
	default:
		inst, err = c.client.JourneyInstance.Create().
			SetID(uuid.New().String()).
			SetGroupJourneyID(p.JourneyID).
			SetUserID(auth.UserID).
			SetStatus(journeyinstance.StatusACTIVE).
			SetStartTime(now).
			SetCurrentLatitude(p.StartLatitude).
			SetCurrentLongitude(p.StartLongitude).
			SetRoutePoints([]map[string]interface{}{initialPoint}).
			Save(ctx)
		if err != nil {
			if ent.IsConstraintError(err) {
				return nil, Conflict("an instance already exists for this journey")
			}
			return nil, ServerErr("failed to create instance")
		}
	}

	if member, ok, err := isMember(ctx, c.client, journey.GroupID, auth.UserID); err == nil && ok {
		if _, err := member.Update().
			SetLastLatitude(p.StartLatitude).
			SetLastLongitude(p.StartLongitude).
			SetLastSeen(now).
			SetIsLocationShared(true).
			Save(ctx); err != nil {
			slog.Warn("failed to update member presence", "user_id", auth.UserID, "error", err)
		}
	}

	user, err := c.client.User.Get(ctx, auth.UserID)
	if err != nil {
		return nil, ServerErr("failed to load user profile")
	}

	c.cache.Del(ctx, cache.GroupJourneyFullKey(p.JourneyID))
	c.cache.Set(ctx, cache.InstanceKey(inst.ID), inst.ID, cache.TTLInstance)
	c.cache.Set(ctx, cache.UserInstanceKey(auth.UserID, p.JourneyID), inst.ID, cache.TTLUserInstance)

	snapshot := toInstanceSnapshot(inst, user)

	if c.publisher != nil {
		if err := c.publisher.PublishMemberStartedInstance(ctx, journey.GroupID, events.MemberStartedInstancePayload{
			JourneyID:      p.JourneyID,
			InstanceID:     inst.ID,
			UserID:         auth.UserID,
			User:           events.MemberUser{DisplayName: user.DisplayName, PhotoRef: user.PhotoRef},
			StartLatitude:  p.StartLatitude,
			StartLongitude: p.StartLongitude,
		}); err != nil {
			slog.Warn("failed to publish member:started-instance", "instance_id", inst.ID, "error", err)
		}
		if err := c.publisher.PublishLocationUpdated(ctx, p.JourneyID, events.MemberLocationUpdatedPayload{InstanceSnapshot: snapshot}); err != nil {
			slog.Warn("failed to publish member:location-updated", "instance_id", inst.ID, "error", err)
		}
	}

	msg := fmt.Sprintf("%s started riding", user.DisplayName)
	evt, err := c.client.RideEvent.Create().
		SetID(uuid.New().String()).
		SetGroupJourneyID(p.JourneyID).
		SetInstanceID(inst.ID).
		SetUserID(auth.UserID).
		SetType(ridevent.TypeMEMBER_STARTED).
		SetMessage(msg).
		Save(ctx)
	if err != nil {
		slog.Warn("failed to persist MEMBER_STARTED ride event", "instance_id", inst.ID, "error", err)
	} else if c.publisher != nil {
		if err := c.publisher.PublishRideEvent(ctx, p.JourneyID, events.RideEventPayload{
			RideEventView: toRideEventView(evt),
			DisplayName:   user.DisplayName,
		}); err != nil {
			slog.Warn("failed to publish group-journey:event", "instance_id", inst.ID, "error", err)
		}
	}

	return &snapshot, nil
}

// PauseInstance transitions an ACTIVE instance to PAUSED (spec §4.5).
func (c *LifecycleCoordinator) PauseInstance(ctx context.Context, auth external.AuthContext, instanceID string) (*models.InstanceSnapshot, error) {
	return c.transitionInstance(ctx, auth, instanceID, journeyinstance.StatusACTIVE, journeyinstance.StatusPAUSED)
}

// ResumeInstance transitions a PAUSED instance back to ACTIVE (spec §4.5).
func (c *LifecycleCoordinator) ResumeInstance(ctx context.Context, auth external.AuthContext, instanceID string) (*models.InstanceSnapshot, error) {
	return c.transitionInstance(ctx, auth, instanceID, journeyinstance.StatusPAUSED, journeyinstance.StatusACTIVE)
}

func (c *LifecycleCoordinator) transitionInstance(ctx context.Context, auth external.AuthContext, instanceID string, from, to journeyinstance.Status) (*models.InstanceSnapshot, error) {
	inst, err := c.client.JourneyInstance.Get(ctx, instanceID)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, NotFound("instance not found")
		}
		return nil, ServerErr("failed to load instance")
	}
	if inst.UserID != auth.UserID {
		return nil, NotYourInstance("instance does not belong to the caller")
	}
	if inst.Status != from {
		return nil, InvalidTransition(fmt.Sprintf("instance must be %s to transition to %s", from, to))
	}

	count, err := c.client.JourneyInstance.Update().
		Where(journeyinstance.IDEQ(instanceID), journeyinstance.StatusEQ(from)).
		SetStatus(to).
		Save(ctx)
	if err != nil {
		return nil, ServerErr("failed to update instance status")
	}
	if count == 0 {
		return nil, InvalidTransition(fmt.Sprintf("instance must be %s to transition to %s", from, to))
	}

	inst, err = c.client.JourneyInstance.Get(ctx, instanceID)
	if err != nil {
		return nil, ServerErr("failed to reload instance")
	}
	user, err := c.client.User.Get(ctx, auth.UserID)
	if err != nil {
		return nil, ServerErr("failed to load user profile")
	}

	c.cache.Del(ctx, cache.GroupJourneyFullKey(inst.GroupJourneyID), cache.InstanceKey(inst.ID))

	if c.publisher != nil {
		payload := events.MemberJourneyStatusPayload{InstanceID: inst.ID, UserID: inst.UserID, Status: string(inst.Status)}
		var pubErr error
		if to == journeyinstance.StatusPAUSED {
			pubErr = c.publisher.PublishInstancePaused(ctx, inst.GroupJourneyID, payload)
		} else {
			pubErr = c.publisher.PublishInstanceResumed(ctx, inst.GroupJourneyID, payload)
		}
		if pubErr != nil {
			slog.Warn("failed to publish instance status change", "instance_id", inst.ID, "status", inst.Status, "error", pubErr)
		}
	}

	snapshot := toInstanceSnapshot(inst, user)
	return &snapshot, nil
}

// CompleteInstanceParams is the validated input to CompleteInstance.
type CompleteInstanceParams struct {
	InstanceID   string
	EndLatitude  *float64
	EndLongitude *float64
}

// CompleteInstance finalizes a rider's participation, idempotently (spec
// §4.5, P6): a second call on an already-COMPLETED instance returns the
// same state without re-incrementing user aggregates.
func (c *LifecycleCoordinator) CompleteInstance(ctx context.Context, auth external.AuthContext, p CompleteInstanceParams) (*models.InstanceSnapshot, error) {
	inst, err := c.client.JourneyInstance.Get(ctx, p.InstanceID)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, NotFound("instance not found")
		}
		return nil, ServerErr("failed to load instance")
	}
	if inst.UserID != auth.UserID {
		return nil, NotYourInstance("instance does not belong to the caller")
	}

	user, err := c.client.User.Get(ctx, auth.UserID)
	if err != nil {
		return nil, ServerErr("failed to load user profile")
	}

	if inst.Status == journeyinstance.StatusCOMPLETED {
		snapshot := toInstanceSnapshot(inst, user)
		return &snapshot, nil
	}

	now := time.Now()
	totalTime := now.Sub(inst.StartTime).Seconds()
	avgSpeed := 0.0
	if totalTime > 0 {
		avgSpeed = clampFloat(inst.TotalDistanceKm/totalTime*3600, 0, 250)
	}

	update := c.client.JourneyInstance.Update().
		Where(journeyinstance.IDEQ(p.InstanceID), journeyinstance.StatusNEQ(journeyinstance.StatusCOMPLETED)).
		SetStatus(journeyinstance.StatusCOMPLETED).
		SetEndTime(now).
		SetTotalTimeSeconds(totalTime).
		SetAvgSpeedKmh(avgSpeed)
	if p.EndLatitude != nil {
		update = update.SetCurrentLatitude(*p.EndLatitude)
	}
	if p.EndLongitude != nil {
		update = update.SetCurrentLongitude(*p.EndLongitude)
	}
	count, err := update.Save(ctx)
	if err != nil {
		return nil, ServerErr("failed to complete instance")
	}
	if count == 0 {
		// Lost the race to a concurrent complete call; still idempotent.
		inst, err = c.client.JourneyInstance.Get(ctx, p.InstanceID)
		if err != nil {
			return nil, ServerErr("failed to reload instance")
		}
		snapshot := toInstanceSnapshot(inst, user)
		return &snapshot, nil
	}

	inst, err = c.client.JourneyInstance.Get(ctx, p.InstanceID)
	if err != nil {
		return nil, ServerErr("failed to reload instance")
	}

	if _, err := c.client.User.UpdateOneID(auth.UserID).
		AddTotalDistanceKm(inst.TotalDistanceKm).
		AddTotalTimeSeconds(inst.TotalTimeSeconds).
		AddTotalTrips(1).
		Save(ctx); err != nil {
		return nil, ServerErr("failed to update user aggregates")
	}
	if inst.TopSpeedKmh > user.TopSpeedKmh {
		if _, err := c.client.User.UpdateOneID(auth.UserID).SetTopSpeedKmh(inst.TopSpeedKmh).Save(ctx); err != nil {
			slog.Warn("failed to update user top speed", "user_id", auth.UserID, "error", err)
		}
	}

	journey, err := c.client.GroupJourney.Get(ctx, inst.GroupJourneyID)
	if err != nil {
		return nil, ServerErr("failed to load group journey")
	}
	grp, err := c.client.Group.Get(ctx, journey.GroupID)
	if err != nil {
		return nil, ServerErr("failed to load group")
	}

	if _, err := c.client.Journey.Create().
		SetID(uuid.New().String()).
		SetUserID(auth.UserID).
		SetGroupJourneyID(inst.GroupJourneyID).
		SetInstanceID(inst.ID).
		SetTitle(grp.Name).
		SetTotalDistanceKm(inst.TotalDistanceKm).
		SetTotalTimeSeconds(inst.TotalTimeSeconds).
		SetAvgSpeedKmh(inst.AvgSpeedKmh).
		SetTopSpeedKmh(inst.TopSpeedKmh).
		SetStartedAt(inst.StartTime).
		SetCompletedAt(now).
		Save(ctx); err != nil && !ent.IsConstraintError(err) {
		slog.Warn("failed to persist journey history row", "instance_id", inst.ID, "error", err)
	}

	rec := external.JourneyHistoryRecord{
		UserID:           auth.UserID,
		GroupJourneyID:   inst.GroupJourneyID,
		InstanceID:       inst.ID,
		TotalDistanceKm:  inst.TotalDistanceKm,
		TotalTimeSeconds: inst.TotalTimeSeconds,
		AvgSpeedKmh:      inst.AvgSpeedKmh,
		TopSpeedKmh:      inst.TopSpeedKmh,
	}
	if c.history != nil {
		if err := c.history.RecordCompletedInstance(ctx, rec); err != nil {
			slog.Warn("failed to record journey history", "instance_id", inst.ID, "error", err)
		}
	}
	if c.achievements != nil {
		go func() {
			evalCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := c.achievements.EvaluateForUser(evalCtx, auth.UserID, rec); err != nil {
				slog.Warn("achievement evaluation failed", "user_id", auth.UserID, "error", err)
			}
		}()
	}

	if c.publisher != nil {
		if err := c.publisher.PublishInstanceCompleted(ctx, inst.GroupJourneyID, events.MemberJourneyCompletedPayload{
			InstanceID:      inst.ID,
			UserID:          inst.UserID,
			DisplayName:     user.DisplayName,
			TotalDistanceKm: inst.TotalDistanceKm,
			DurationSeconds: inst.TotalTimeSeconds,
			Status:          string(inst.Status),
		}); err != nil {
			slog.Warn("failed to publish member:journey-completed", "instance_id", inst.ID, "error", err)
		}
	}

	completedMsg := fmt.Sprintf("%s completed the journey", user.DisplayName)
	evt, err := c.client.RideEvent.Create().
		SetID(uuid.New().String()).
		SetGroupJourneyID(inst.GroupJourneyID).
		SetInstanceID(inst.ID).
		SetUserID(auth.UserID).
		SetType(ridevent.TypeMEMBER_COMPLETED).
		SetMessage(completedMsg).
		Save(ctx)
	if err != nil {
		slog.Warn("failed to persist MEMBER_COMPLETED ride event", "instance_id", inst.ID, "error", err)
	} else if c.publisher != nil {
		if err := c.publisher.PublishRideEventToGroup(ctx, journey.GroupID, events.RideEventPayload{
			RideEventView: toRideEventView(evt),
			DisplayName:   user.DisplayName,
		}); err != nil {
			slog.Warn("failed to publish group-journey:event to group room", "instance_id", inst.ID, "error", err)
		}
	}

	remaining, err := c.client.JourneyInstance.Query().
		Where(
			journeyinstance.GroupJourneyIDEQ(inst.GroupJourneyID),
			journeyinstance.IDNEQ(inst.ID),
			journeyinstance.StatusIn(journeyinstance.StatusACTIVE, journeyinstance.StatusPAUSED),
		).
		Count(ctx)
	if err != nil {
		slog.Warn("failed to count remaining instances", "journey_id", inst.GroupJourneyID, "error", err)
	} else if remaining == 0 {
		if err := c.finishGroupJourney(ctx, inst.GroupJourneyID); err != nil {
			slog.Warn("failed to auto-close group journey", "journey_id", inst.GroupJourneyID, "error", err)
		}
	}

	c.cache.Del(ctx, cache.InstanceKey(inst.ID), cache.GroupJourneyFullKey(inst.GroupJourneyID))

	snapshot := toInstanceSnapshot(inst, user)
	return &snapshot, nil
}

// finishGroupJourney transitions the journey to COMPLETED and soft-archives
// its owning group (spec §4.5). Internal: called only from CompleteInstance
// once no non-terminal instance remains.
func (c *LifecycleCoordinator) finishGroupJourney(ctx context.Context, journeyID string) error {
	count, err := c.client.GroupJourney.Update().
		Where(groupjourney.IDEQ(journeyID), groupjourney.StatusEQ(groupjourney.StatusACTIVE)).
		SetStatus(groupjourney.StatusCOMPLETED).
		SetCompletedAt(time.Now()).
		Save(ctx)
	if err != nil {
		return fmt.Errorf("failed to complete group journey: %w", err)
	}
	if count == 0 {
		return nil
	}

	journey, err := c.client.GroupJourney.Get(ctx, journeyID)
	if err != nil {
		return fmt.Errorf("failed to reload group journey: %w", err)
	}

	c.cache.Del(ctx, cache.GroupJourneyKey(journeyID), cache.GroupJourneyFullKey(journeyID), cache.GroupActiveJourneyKey(journey.GroupID))

	if c.publisher != nil {
		if err := c.publisher.PublishGroupJourneyCompleted(ctx, journeyID, journey.GroupID); err != nil {
			slog.Warn("failed to publish group-journey:completed", "journey_id", journeyID, "error", err)
		}
	}

	archived, err := c.client.Group.Update().
		Where(group.IDEQ(journey.GroupID), group.IsActiveEQ(true)).
		SetIsActive(false).
		Save(ctx)
	if err != nil {
		return fmt.Errorf("failed to archive group: %w", err)
	}
	if archived > 0 && c.publisher != nil {
		if err := c.publisher.PublishGroupArchived(ctx, journey.GroupID); err != nil {
			slog.Warn("failed to publish group:archived", "group_id", journey.GroupID, "error", err)
		}
	}
	return nil
}

// GetGroupJourney returns a journey plus its live instances, read-through
// via cache (spec §4.5). Membership is always authorized against the store.
func (c *LifecycleCoordinator) GetGroupJourney(ctx context.Context, auth external.AuthContext, journeyID string) (*models.GroupJourneyView, error) {
	journey, err := c.client.GroupJourney.Query().Where(groupjourney.IDEQ(journeyID)).Only(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, NotFound("group journey not found")
		}
		return nil, ServerErr("failed to load group journey")
	}
	if _, ok, err := isMember(ctx, c.client, journey.GroupID, auth.UserID); err != nil {
		return nil, ServerErr("failed to verify membership")
	} else if !ok {
		return nil, NotAMember("caller is not a member of this journey's group")
	}

	var cached models.GroupJourneyView
	if err := c.cache.Get(ctx, cache.GroupJourneyFullKey(journeyID), &cached); err == nil {
		return &cached, nil
	}

	view, err := c.loadGroupJourneyView(ctx, journey)
	if err != nil {
		return nil, err
	}
	c.cache.Set(ctx, cache.GroupJourneyFullKey(journeyID), view, cache.TTLGroupJourneyFull)
	return view, nil
}

func (c *LifecycleCoordinator) loadGroupJourneyView(ctx context.Context, journey *ent.GroupJourney) (*models.GroupJourneyView, error) {
	instances, err := c.client.JourneyInstance.Query().
		Where(journeyinstance.GroupJourneyIDEQ(journey.ID)).
		WithUser().
		All(ctx)
	if err != nil {
		return nil, ServerErr("failed to load journey instances")
	}
	view := groupJourneyHeaderView(journey)
	view.Instances = make([]models.InstanceSnapshot, 0, len(instances))
	for _, inst := range instances {
		view.Instances = append(view.Instances, toInstanceSnapshot(inst, inst.Edges.User))
	}
	return &view, nil
}

// GetMyInstance returns the caller's instance within a journey, or NotFound
// if they never started one (spec §6.1: "200 or 404", no membership kind
// enumerated — a non-member simply has no instance to find).
func (c *LifecycleCoordinator) GetMyInstance(ctx context.Context, auth external.AuthContext, journeyID string) (*models.InstanceSnapshot, error) {
	var cachedID string
	if err := c.cache.Get(ctx, cache.UserInstanceKey(auth.UserID, journeyID), &cachedID); err == nil && cachedID != "" {
		if inst, err := c.client.JourneyInstance.Get(ctx, cachedID); err == nil {
			if user, err := c.client.User.Get(ctx, auth.UserID); err == nil {
				snapshot := toInstanceSnapshot(inst, user)
				return &snapshot, nil
			}
		}
	}

	inst, err := c.client.JourneyInstance.Query().
		Where(journeyinstance.GroupJourneyIDEQ(journeyID), journeyinstance.UserIDEQ(auth.UserID)).
		WithUser().
		Only(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, NotFound("no instance for this journey")
		}
		return nil, ServerErr("failed to load instance")
	}
	c.cache.Set(ctx, cache.UserInstanceKey(auth.UserID, journeyID), inst.ID, cache.TTLUserInstance)
	snapshot := toInstanceSnapshot(inst, inst.Edges.User)
	return &snapshot, nil
}

// GetActiveForGroup returns the group's current ACTIVE journey, or NotFound
// if none (spec §4.5).
func (c *LifecycleCoordinator) GetActiveForGroup(ctx context.Context, auth external.AuthContext, groupID string) (*models.GroupJourneyView, error) {
	if _, ok, err := isMember(ctx, c.client, groupID, auth.UserID); err != nil {
		return nil, ServerErr("failed to verify membership")
	} else if !ok {
		return nil, NotAMember("caller is not a member of this group")
	}

	var cached map[string]string
	if err := c.cache.Get(ctx, cache.GroupActiveJourneyKey(groupID), &cached); err == nil {
		if id := cached["id"]; id != "" {
			return c.GetGroupJourney(ctx, auth, id)
		}
	}

	journey, err := c.client.GroupJourney.Query().
		Where(groupjourney.GroupIDEQ(groupID), groupjourney.StatusEQ(groupjourney.StatusACTIVE)).
		Only(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, NotFound("no active journey for this group")
		}
		return nil, ServerErr("failed to load active journey")
	}
	c.cache.Set(ctx, cache.GroupActiveJourneyKey(groupID),
		map[string]string{"id": journey.ID, "status": string(journey.Status)}, cache.TTLGroupActiveJourney)
	return c.GetGroupJourney(ctx, auth, journey.ID)
}

// GetGroupJourneySummary aggregates per-member totals for a journey (spec
// §4.5): sum totalDistance, sum totalTime, max topSpeed, count photos.
func (c *LifecycleCoordinator) GetGroupJourneySummary(ctx context.Context, auth external.AuthContext, journeyID string) (*models.JourneySummary, error) {
	journey, err := c.client.GroupJourney.Query().Where(groupjourney.IDEQ(journeyID)).Only(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, NotFound("group journey not found")
		}
		return nil, ServerErr("failed to load group journey")
	}
	if _, ok, err := isMember(ctx, c.client, journey.GroupID, auth.UserID); err != nil {
		return nil, ServerErr("failed to verify membership")
	} else if !ok {
		return nil, NotAMember("caller is not a member of this journey's group")
	}

	instances, err := c.client.JourneyInstance.Query().
		Where(journeyinstance.GroupJourneyIDEQ(journeyID)).
		WithUser().
		All(ctx)
	if err != nil {
		return nil, ServerErr("failed to load journey instances")
	}

	photoCount, err := c.client.RideEvent.Query().
		Where(ridevent.GroupJourneyIDEQ(journeyID), ridevent.TypeEQ(ridevent.TypePHOTO)).
		Count(ctx)
	if err != nil {
		return nil, ServerErr("failed to count photos")
	}

	summary := &models.JourneySummary{
		GroupJourneyID: journey.ID,
		Status:         string(journey.Status),
		StartedAt:      journey.StartedAt,
		CompletedAt:    journey.CompletedAt,
		PhotoCount:     photoCount,
		Members:        make([]models.MemberJourneyStat, 0, len(instances)),
	}

	for _, inst := range instances {
		summary.TotalDistanceKm += inst.TotalDistanceKm
		summary.TotalTimeSeconds += inst.TotalTimeSeconds
		if inst.TopSpeedKmh > summary.TopSpeedKmh {
			summary.TopSpeedKmh = inst.TopSpeedKmh
		}
		displayName := ""
		if inst.Edges.User != nil {
			displayName = inst.Edges.User.DisplayName
		}
		summary.Members = append(summary.Members, models.MemberJourneyStat{
			UserID:           inst.UserID,
			DisplayName:      displayName,
			Status:           string(inst.Status),
			TotalDistanceKm:  inst.TotalDistanceKm,
			TotalTimeSeconds: inst.TotalTimeSeconds,
			AvgSpeedKmh:      inst.AvgSpeedKmh,
			TopSpeedKmh:      inst.TopSpeedKmh,
		})
	}

	return summary, nil
}

// IsMemberOfJourneyGroup implements pkg/events.MembershipChecker, used by
// the SocketGateway to authorize a group-journey:join request (spec §4.3).
func (c *LifecycleCoordinator) IsMemberOfJourneyGroup(ctx context.Context, userID, journeyID string) (string, bool, error) {
	journey, err := c.client.GroupJourney.Query().Where(groupjourney.IDEQ(journeyID)).Only(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return "", false, nil
		}
		return "", false, err
	}
	_, ok, err := isMember(ctx, c.client, journey.GroupID, userID)
	if err != nil {
		return "", false, err
	}
	return journey.GroupID, ok, nil
}

// activeJourneyCached consults the group:{id}:active-journey cache entry.
// StartGroupJourney uses the result only for a debug log; its conflict
// decision always comes from the store. hit reports whether the cache had an
// opinion at all; active is only meaningful when hit is true.
func (c *LifecycleCoordinator) activeJourneyCached(ctx context.Context, groupID string) (active bool, hit bool) {
	var cached map[string]string
	if err := c.cache.Get(ctx, cache.GroupActiveJourneyKey(groupID), &cached); err != nil {
		return false, false
	}
	id, ok := cached["id"]
	return ok && id != "", true
}
