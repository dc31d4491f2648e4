package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sync/atomic"
	"time"
)

// TokenLength is the fixed rendered length of every session token:
// a SHA-256 digest in lowercase hex.
const TokenLength = 64

const fragmentLength = 8

var tokenSeq atomic.Uint64

// NewToken mints a session token from 256 bits of CSPRNG output mixed with
// the current nanosecond timestamp and a process-local sequence counter,
// digested through SHA-256 and rendered as 64 lowercase hex characters.
// Fixed length and charset make format validation a pure string check.
func NewToken() (string, error) {
	var raw [48]byte
	if _, err := rand.Read(raw[:32]); err != nil {
		return "", err
	}
	binary.BigEndian.PutUint64(raw[32:40], uint64(time.Now().UnixNano()))
	binary.BigEndian.PutUint64(raw[40:48], tokenSeq.Add(1))

	sum := sha256.Sum256(raw[:])
	return hex.EncodeToString(sum[:]), nil
}

// ValidFormat reports whether token has the exact generator shape:
// TokenLength lowercase hex characters. Callers reject on false before any
// store lookup.
func ValidFormat(token string) bool {
	if len(token) != TokenLength {
		return false
	}
	for i := 0; i < len(token); i++ {
		c := token[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// Fragment returns the short token prefix safe for listings and audit
// records. Full tokens never leave the validation path.
func Fragment(token string) string {
	if len(token) <= fragmentLength {
		return token
	}
	return token[:fragmentLength]
}

// HashUserAgent derives the binding hash stored on the session for the
// client user agent.
func HashUserAgent(userAgent string) string {
	sum := sha256.Sum256([]byte(userAgent))
	return hex.EncodeToString(sum[:])
}
