package kvstore

// Keys shared by every component that persists into the store.
const (
	KeyGameState      = "colorClash_gameState"
	KeyActiveSessions = "colorClash_activeSessions"
	KeyRoundTimer     = "colorClash_roundTimer"
	KeyLastRoundEnd   = "colorClash_lastRoundEnd"
	KeyBackgroundSync = "colorClash_backgroundSync"
)
