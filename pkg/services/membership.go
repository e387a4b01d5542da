package services

import (
	"context"

	"github.com/wayfarian/groupjourney/ent"
	"github.com/wayfarian/groupjourney/ent/groupmember"
)

// isMember looks up the (groupID, userID) GroupMember row, the
// authorization check every operation runs against the store directly —
// the cache is never consulted for authorization (spec §4.1).
func isMember(ctx context.Context, client *ent.Client, groupID, userID string) (*ent.GroupMember, bool, error) {
	m, err := client.GroupMember.Query().
		Where(
			groupmember.GroupIDEQ(groupID),
			groupmember.UserIDEQ(userID),
		).
		Only(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return m, true, nil
}
