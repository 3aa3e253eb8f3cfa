package domain

const (
	VisibilityPublic  = "public"
	VisibilityInvite  = "invite"
	VisibilityPrivate = "private"
)

// ValidVisibility reports whether v is one of the known convoy visibilities.
func ValidVisibility(v string) bool {
	switch v {
	case VisibilityPublic, VisibilityInvite, VisibilityPrivate:
		return true
	}
	return false
}

// Membership bounds for a single convoy.
const (
	MinConvoyMembers     = 2
	MaxConvoyMembers     = 50
	DefaultConvoyMembers = 20
)

const (
	MaxTitleLength       = 100
	MaxDescriptionLength = 500
	MaxWaypoints         = 25
)

// User stat counters maintained by the identity store.
const (
	StatConvoysJoined  = "convoys_joined"
	StatConvoysCreated = "convoys_created"
)

const (
	NotifConvoyMemberJoined  = "CONVOY_MEMBER_JOINED"
	NotifConvoyMemberLeft    = "CONVOY_MEMBER_LEFT"
	NotifConvoyMemberRemoved = "CONVOY_MEMBER_REMOVED"
	NotifConvoyAdded         = "CONVOY_ADDED"
	NotifConvoyStarted       = "CONVOY_STARTED"
	NotifConvoyEnded         = "CONVOY_ENDED"
	NotifConvoyOwnerChanged  = "CONVOY_OWNER_CHANGED"
)

// Nearby search defaults in km / result count.
const (
	DefaultNearbyRadiusKm = 10
	DefaultNearbyLimit    = 20
)
