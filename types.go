package sessionguard

// Privilege levels stored on a session. The level is an opaque string to the
// subsystem; these are the values the host application uses.
const (
	PrivilegeUser  = "user"
	PrivilegeAdmin = "admin"
)

// Snapshot is the explicit per-request view of a validated session returned
// by [Service.Validate]. It replaces any ambient request-local session
// state: callers read from the snapshot, never from shared mutable objects.
type Snapshot struct {
	Token          string
	UserID         int64
	CSRFToken      string
	PrivilegeLevel string
	CreatedAt      int64
	LastActivity   int64
	RememberMe     bool
	RequestCount   int64

	// RotatedToken is set when this validation triggered a rotation; the
	// caller must hand it back to the client in place of Token.
	RotatedToken string
}

// SessionInfo is one entry in a user-facing session listing. Tokens are
// truncated to an opaque fragment and never listed in full.
type SessionInfo struct {
	TokenFragment string
	CreatedAt     int64
	LastActivity  int64
	IPAddress     string
	UserAgentHash string
	RememberMe    bool
	IsCurrent     bool
}
