// Package internal holds token minting and hashing helpers shared by the
// root package and the session store. Not part of the public API.
package internal
