package session

// Record is the authoritative server-side state for one authenticated
// client, addressed by its token. All fields live in the store; rotation
// re-keys the record without changing its logical identity.
type Record struct {
	Token  string
	UserID int64

	CreatedAt    int64
	LastActivity int64
	RotatedAt    int64

	IPAddress     string
	UserAgentHash string

	CSRFToken      string
	PrivilegeLevel string
	RememberMe     bool

	Telemetry Telemetry
	Flags     SecurityFlags
}

// Telemetry is the analytics sub-record. It is updated fire-and-forget and
// a lost write must never be confused with a security check failure.
type Telemetry struct {
	RequestCount int64
}

// SecurityFlags records informational validation observations for the audit
// trail. Not authoritative: the validator decides from live comparisons.
type SecurityFlags struct {
	IPChanged          bool `json:"ip_changed"`
	UAChanged          bool `json:"ua_changed"`
	SuspiciousActivity bool `json:"suspicious_activity"`
}
