package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// GroupMember holds the schema definition for the GroupMember entity.
//
// Composite key is (group_id, user_id); id is a synthetic surrogate so Ent
// can address the row directly (the teacher schema uses the same synthetic-id
// + unique-composite-index shape for Stage: (session_id, stage_index)).
type GroupMember struct {
	ent.Schema
}

// Fields of the GroupMember.
func (GroupMember) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("member_id").
			Unique().
			Immutable(),
		field.String("group_id").
			Immutable(),
		field.String("user_id").
			Immutable(),
		field.Enum("role").
			Values("CREATOR", "ADMIN", "MEMBER").
			Default("MEMBER"),
		field.Float("last_latitude").
			Optional().
			Nillable(),
		field.Float("last_longitude").
			Optional().
			Nillable(),
		field.Time("last_seen").
			Optional().
			Nillable(),
		field.Bool("is_location_shared").
			Default(false),
	}
}

// Edges of the GroupMember.
func (GroupMember) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("group", Group.Type).
			Ref("members").
			Field("group_id").
			Unique().
			Required().
			Immutable(),
		edge.From("user", User.Type).
			Ref("memberships").
			Field("user_id").
			Unique().
			Required().
			Immutable(),
	}
}

// Indexes of the GroupMember.
func (GroupMember) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("group_id", "user_id").
			Unique(),
		index.Fields("user_id"),
	}
}
