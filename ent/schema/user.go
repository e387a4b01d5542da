package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
)

// User holds the schema definition for the User entity.
//
// Users are owned by the identity/auth system (out of scope for this
// service, see pkg/external.IdentityVerifier); this schema only stores the
// rolling aggregates the coordinator increments on journey completion.
type User struct {
	ent.Schema
}

// Fields of the User.
func (User) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("user_id").
			Unique().
			Immutable(),
		field.String("display_name"),
		field.String("photo_ref").
			Optional().
			Nillable(),
		field.Float("total_distance_km").
			Default(0).
			Comment("Lifetime sum of completed-instance totalDistance"),
		field.Float("total_time_seconds").
			Default(0).
			Comment("Lifetime sum of completed-instance totalTime"),
		field.Float("top_speed_kmh").
			Default(0),
		field.Int("total_trips").
			Default(0),
	}
}

// Edges of the User.
func (User) Edges() []ent.Edge {
	return []ent.Edge{
		edge.To("memberships", GroupMember.Type),
		edge.To("instances", JourneyInstance.Type),
		edge.To("ride_events", RideEvent.Type),
		edge.To("journeys", Journey.Type),
	}
}
