package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Group holds the schema definition for the Group entity.
//
// Groups are created externally; this schema is the coordinator's view of
// a group sufficient to authorize journey operations and to soft-archive
// the group once its journey finishes for everyone.
type Group struct {
	ent.Schema
}

// Fields of the Group.
func (Group) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("group_id").
			Unique().
			Immutable(),
		field.String("name"),
		field.String("creator_id").
			Immutable(),
		field.Bool("is_active").
			Default(true).
			Comment("Soft-archived to false once a group journey auto-completes"),
	}
}

// Edges of the Group.
func (Group) Edges() []ent.Edge {
	return []ent.Edge{
		edge.To("members", GroupMember.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
		edge.To("journeys", GroupJourney.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
	}
}

// Indexes of the Group.
func (Group) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("creator_id"),
	}
}
