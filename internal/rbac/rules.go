package rbac

const (
	RolePlayer = "player"
	RoleAdmin  = "admin"
)

const (
	PermJourneyPlay         = "journey:play"
	PermLeaderboardView     = "leaderboard:view"
	PermLeaderboardModerate = "leaderboard:moderate"
)

// Default policy.
var RolePermissions = map[string][]string{
	RolePlayer: {
		PermJourneyPlay,
		PermLeaderboardView,
	},
	RoleAdmin: {
		"*", // everything
	},
}
