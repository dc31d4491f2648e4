// Package session holds the Redis-backed session record store: the
// token-keyed record hash, the per-user index set, and the codec between
// the two representations.
package session
