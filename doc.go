// Package sessionguard issues, validates, rotates, and revokes server-side
// session tokens backed by Redis.
//
// The surrounding web application hands sessionguard an authentication
// outcome at login and a presented token on every authenticated request; all
// authoritative session state lives in the store, never in process memory,
// so any number of server processes stay consistent.
//
// Construct a single Service at process start:
//
//	svc, err := sessionguard.New().
//		WithRedis(rdb).
//		WithAuditSink(sink).
//		Build()
//
// Client IP and User-Agent travel on the request context via WithClientIP
// and WithUserAgent. Validate returns an explicit Snapshot; when a rotation
// fired, Snapshot.RotatedToken carries the replacement token the caller must
// hand back to the client.
package sessionguard
