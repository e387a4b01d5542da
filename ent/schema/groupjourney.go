package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// GroupJourney holds the schema definition for the GroupJourney entity.
//
// Invariant I-ACTIVE: at most one ACTIVE GroupJourney per group_id. Enforced
// here by a partial unique index on group_id (status = 'ACTIVE'), mirroring
// the teacher's partial index on AlertSession.deleted_at — the database is
// the final arbiter, the service layer's prior read is only a fast path.
type GroupJourney struct {
	ent.Schema
}

// Fields of the GroupJourney.
func (GroupJourney) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("journey_id").
			Unique().
			Immutable(),
		field.String("group_id").
			Immutable(),
		field.String("creator_id").
			Immutable(),
		field.String("title"),
		field.Text("description").
			Optional().
			Nillable(),
		field.Float("end_latitude"),
		field.Float("end_longitude"),
		field.Enum("status").
			Values("ACTIVE", "COMPLETED", "CANCELLED").
			Default("ACTIVE"),
		field.Time("started_at").
			Default(time.Now).
			Immutable(),
		field.Time("completed_at").
			Optional().
			Nillable(),
	}
}

// Edges of the GroupJourney.
func (GroupJourney) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("group", Group.Type).
			Ref("journeys").
			Field("group_id").
			Unique().
			Required().
			Immutable(),
		edge.To("instances", JourneyInstance.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
		edge.To("events", RideEvent.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
	}
}

// Indexes of the GroupJourney.
func (GroupJourney) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("group_id", "status"),
		// Partial unique index: at most one ACTIVE journey per group.
		index.Fields("group_id").
			Unique().
			Annotations(entsql.IndexWhere("status = 'ACTIVE'")),
	}
}
