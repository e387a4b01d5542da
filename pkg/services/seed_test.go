package services_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/wayfarian/groupjourney/ent"
	"github.com/wayfarian/groupjourney/ent/groupmember"
	"github.com/wayfarian/groupjourney/pkg/external"
)

// seedUser creates a User row with sensible defaults for display rendering.
func seedUser(t *testing.T, ctx context.Context, client *ent.Client, displayName string) *ent.User {
	t.Helper()
	u, err := client.User.Create().
		SetID(uuid.New().String()).
		SetDisplayName(displayName).
		Save(ctx)
	require.NoError(t, err)
	return u
}

// seedGroup creates a Group and adds the given users as members, the first
// as CREATOR and the rest as MEMBER.
func seedGroup(t *testing.T, ctx context.Context, client *ent.Client, name string, users ...*ent.User) *ent.Group {
	t.Helper()
	require.NotEmpty(t, users)

	g, err := client.Group.Create().
		SetID(uuid.New().String()).
		SetName(name).
		SetCreatorID(users[0].ID).
		Save(ctx)
	require.NoError(t, err)

	for i, u := range users {
		role := groupmember.RoleMEMBER
		if i == 0 {
			role = groupmember.RoleCREATOR
		}
		_, err := client.GroupMember.Create().
			SetID(uuid.New().String()).
			SetGroupID(g.ID).
			SetUserID(u.ID).
			SetRole(role).
			Save(ctx)
		require.NoError(t, err)
	}
	return g
}

// testAuth builds an external.AuthContext for a seeded user.
func testAuth(u *ent.User) external.AuthContext {
	return external.AuthContext{UserID: u.ID, DisplayName: u.DisplayName}
}
