package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Journey holds the schema definition for the Journey entity: the immutable
// per-user summary row written by completeInstance (spec §4.5), titled with
// the owning group's name, feeding the user's journey history the same way
// a solo-journey completion would (see pkg/external.JourneyHistoryRecorder).
// Distinct from JourneyInstance, which is live/mutable until terminal; a
// Journey row is written once and never updated.
type Journey struct {
	ent.Schema
}

// Fields of the Journey.
func (Journey) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("history_id").
			Unique().
			Immutable(),
		field.String("user_id").
			Immutable(),
		field.String("group_journey_id").
			Immutable(),
		field.String("instance_id").
			Immutable(),
		field.String("title").
			Immutable().
			Comment("Titled with the owning group's name at completion time"),
		field.Float("total_distance_km").
			Immutable(),
		field.Float("total_time_seconds").
			Immutable(),
		field.Float("avg_speed_kmh").
			Immutable(),
		field.Float("top_speed_kmh").
			Immutable(),
		field.Time("started_at").
			Immutable(),
		field.Time("completed_at").
			Immutable(),
	}
}

// Edges of the Journey.
func (Journey) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("user", User.Type).
			Ref("journeys").
			Field("user_id").
			Unique().
			Required().
			Immutable(),
	}
}

// Indexes of the Journey.
func (Journey) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("user_id", "completed_at"),
		index.Fields("instance_id").
			Unique(),
	}
}
