package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// RideEvent holds the schema definition for the RideEvent entity: an
// immutable timeline entry on a GroupJourney.
type RideEvent struct {
	ent.Schema
}

// Fields of the RideEvent.
func (RideEvent) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("event_id").
			Unique().
			Immutable(),
		// seq is a database-assigned monotonic cursor used only for catchup
		// pagination (events-since-N); it is never exposed to clients, which
		// address events by the UUID id above.
		field.Int64("seq").
			Immutable().
			Unique().
			SchemaType(map[string]string{dialect.Postgres: "bigserial"}),
		field.String("group_journey_id").
			Immutable(),
		field.String("instance_id").
			Optional().
			Nillable().
			Immutable(),
		field.String("user_id").
			Immutable(),
		field.Enum("type").
			Values("MESSAGE", "PHOTO", "CHECKPOINT", "STATUS", "EMERGENCY", "CUSTOM", "MEMBER_STARTED", "MEMBER_COMPLETED").
			Immutable(),
		field.Text("message").
			Optional().
			Nillable().
			Immutable(),
		field.Float("latitude").
			Optional().
			Nillable().
			Immutable(),
		field.Float("longitude").
			Optional().
			Nillable().
			Immutable(),
		field.String("media_ref").
			Optional().
			Nillable().
			Immutable(),
		field.JSON("data", map[string]interface{}{}).
			Optional().
			Immutable(),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
	}
}

// Edges of the RideEvent.
func (RideEvent) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("journey", GroupJourney.Type).
			Ref("events").
			Field("group_journey_id").
			Unique().
			Required().
			Immutable(),
		edge.From("instance", JourneyInstance.Type).
			Ref("events").
			Field("instance_id").
			Unique().
			Immutable(),
		edge.From("user", User.Type).
			Ref("ride_events").
			Field("user_id").
			Unique().
			Required().
			Immutable(),
	}
}

// Indexes of the RideEvent.
func (RideEvent) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("group_journey_id", "created_at"),
		index.Fields("group_journey_id", "seq"),
	}
}
