// Package id generates ULID identifiers for users, sessions and vault
// history records.
package id

import (
	"crypto/rand"

	"github.com/oklog/ulid/v2"
)

// New returns a fresh ULID string. ULIDs sort lexicographically by creation
// time, which the history table relies on to read records back in order.
func New() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}
