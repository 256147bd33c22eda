package registry

// Key layout in the shared key-value service. One key per entry: only the
// flat form gives a clean transactional multi-op over forward and inverse
// entries. The legacy hash layout is intentionally not supported.
const (
	userKeyPrefix   = "ws:user_fd:"            // + userID  → binding (server#handle)
	handleKeyPrefix = "ws:fd_user_map:"        // + binding → userID
	queueKeyPrefix  = "ws:notification_queue:" // + userID  → list of JSON records

	// BrokerChannel is the shared pub/sub channel bridged into local delivery.
	BrokerChannel = "ws:notification_queue:"
)

func userKey(userID string) string  { return userKeyPrefix + userID }
func handleKey(b Binding) string    { return handleKeyPrefix + b.String() }
func queueKey(userID string) string { return queueKeyPrefix + userID }
