package cache

// Key builders for the six cache-key families enumerated in spec §4.1.
// Every read path tries one of these before falling back to the Store, and
// every write path invalidates the matching key(s).

func GroupKey(groupID string) string {
	return "group:" + groupID
}

func GroupActiveJourneyKey(groupID string) string {
	return "group:" + groupID + ":active-journey"
}

func GroupJourneyKey(journeyID string) string {
	return "group-journey:" + journeyID
}

// GroupJourneyFullKey caches the journey plus its full member/instance
// roster, distinct from GroupJourneyKey's lighter view.
func GroupJourneyFullKey(journeyID string) string {
	return "group-journey:" + journeyID + ":full"
}

func InstanceKey(instanceID string) string {
	return "instance:" + instanceID
}

// UserInstanceKey caches the id of a user's instance within a specific
// journey, used by getMyInstance to skip a lookup by (journey, user).
func UserInstanceKey(userID, journeyID string) string {
	return "user:" + userID + ":instance:" + journeyID
}

// GroupPattern matches every cached key derived from a group.
func GroupPattern(groupID string) string {
	return "group:" + groupID + "*"
}

// GroupJourneyPattern matches a journey's plain and ":full" cache entries.
func GroupJourneyPattern(journeyID string) string {
	return "group-journey:" + journeyID + "*"
}

// TTL assignment, one constant per row of spec §4.1's key-family table.
const (
	TTLGroup              = TTLMedium
	TTLGroupActiveJourney = TTLHour
	TTLGroupJourney       = TTLHour
	TTLGroupJourneyFull   = TTLShort
	TTLInstance           = TTLShort
	TTLUserInstance       = TTLShort
)
