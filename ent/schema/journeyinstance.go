package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// JourneyInstance holds the schema definition for the JourneyInstance entity:
// one user's participation in a GroupJourney.
//
// Invariant I-INSTANCE: at most one instance per (group_journey_id, user_id),
// enforced by the composite unique index below. The "at most one non-terminal
// instance per user across all journeys" invariant is cross-journey and is
// enforced in pkg/services (no single-table index can express it) — see
// DESIGN.md.
type JourneyInstance struct {
	ent.Schema
}

// Fields of the JourneyInstance.
func (JourneyInstance) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("instance_id").
			Unique().
			Immutable(),
		field.String("group_journey_id").
			Immutable(),
		field.String("user_id").
			Immutable(),
		field.Enum("status").
			Values("ACTIVE", "PAUSED", "COMPLETED", "CANCELLED").
			Default("ACTIVE"),
		field.Time("start_time").
			Default(time.Now),
		field.Time("end_time").
			Optional().
			Nillable(),
		field.Float("current_latitude"),
		field.Float("current_longitude"),
		field.Time("last_location_update").
			Optional().
			Nillable(),
		field.Float("total_distance_km").
			Default(0),
		field.Float("total_time_seconds").
			Default(0),
		field.Float("avg_speed_kmh").
			Default(0),
		field.Float("top_speed_kmh").
			Default(0),
		field.JSON("route_points", []map[string]interface{}{}).
			Optional().
			Comment("Ordered {lat,lng,timestamp,speed?,heading?} samples; append-only until terminal"),
	}
}

// Edges of the JourneyInstance.
func (JourneyInstance) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("journey", GroupJourney.Type).
			Ref("instances").
			Field("group_journey_id").
			Unique().
			Required().
			Immutable(),
		edge.From("user", User.Type).
			Ref("instances").
			Field("user_id").
			Unique().
			Required().
			Immutable(),
		edge.To("events", RideEvent.Type).
			Annotations(entsql.OnDelete(entsql.SetNull)),
	}
}

// Indexes of the JourneyInstance.
func (JourneyInstance) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("group_journey_id", "user_id").
			Unique(),
		index.Fields("user_id", "status"),
		index.Fields("group_journey_id", "status"),
	}
}
