package session

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Redis hash field names for a session record. All values are stored as
// strings; security flags are one JSON field.
const (
	fieldUserID         = "user_id"
	fieldCreatedAt      = "created_at"
	fieldLastActivity   = "last_activity"
	fieldRotatedAt      = "rotated_at"
	fieldIPAddress      = "ip_address"
	fieldUserAgentHash  = "user_agent_hash"
	fieldCSRFToken      = "csrf_token"
	fieldPrivilegeLevel = "privilege_level"
	fieldRememberMe     = "remember_me"
	fieldRequestCount   = "request_count"
	fieldSecurityFlags  = "security_flags"
)

func encodeRecord(rec *Record) (map[string]any, error) {
	flags, err := json.Marshal(rec.Flags)
	if err != nil {
		return nil, err
	}

	rememberMe := "0"
	if rec.RememberMe {
		rememberMe = "1"
	}

	return map[string]any{
		fieldUserID:         strconv.FormatInt(rec.UserID, 10),
		fieldCreatedAt:      strconv.FormatInt(rec.CreatedAt, 10),
		fieldLastActivity:   strconv.FormatInt(rec.LastActivity, 10),
		fieldRotatedAt:      strconv.FormatInt(rec.RotatedAt, 10),
		fieldIPAddress:      rec.IPAddress,
		fieldUserAgentHash:  rec.UserAgentHash,
		fieldCSRFToken:      rec.CSRFToken,
		fieldPrivilegeLevel: rec.PrivilegeLevel,
		fieldRememberMe:     rememberMe,
		fieldRequestCount:   strconv.FormatInt(rec.Telemetry.RequestCount, 10),
		fieldSecurityFlags:  string(flags),
	}, nil
}

func decodeRecord(token string, fields map[string]string) (*Record, error) {
	userID, err := strconv.ParseInt(fields[fieldUserID], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad user_id %q", ErrRecordCorrupt, fields[fieldUserID])
	}

	rec := &Record{
		Token:          token,
		UserID:         userID,
		CreatedAt:      parseInt64(fields[fieldCreatedAt]),
		LastActivity:   parseInt64(fields[fieldLastActivity]),
		RotatedAt:      parseInt64(fields[fieldRotatedAt]),
		IPAddress:      fields[fieldIPAddress],
		UserAgentHash:  fields[fieldUserAgentHash],
		CSRFToken:      fields[fieldCSRFToken],
		PrivilegeLevel: fields[fieldPrivilegeLevel],
		RememberMe:     fields[fieldRememberMe] == "1",
	}
	rec.Telemetry.RequestCount = parseInt64(fields[fieldRequestCount])

	if raw := fields[fieldSecurityFlags]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &rec.Flags); err != nil {
			return nil, fmt.Errorf("%w: bad security_flags", ErrRecordCorrupt)
		}
	}

	return rec, nil
}

// parseInt64 is lenient for non-critical numeric fields: a missing or
// garbled timestamp decodes to zero and the validator treats the record as
// needing reconstruction rather than failing the request.
func parseInt64(s string) int64 {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}
