// Package uuidutil generates the random identifiers used for attempt
// IDs, appliance IDs, lock nonces, and gc plan names.
package uuidutil

import (
	"crypto/rand"
	"fmt"
)

// NewV4 returns a random RFC 4122 version 4 UUID string. A failing
// crypto/rand is a broken system, not a recoverable condition.
func NewV4() string {
	var u [16]byte
	if _, err := rand.Read(u[:]); err != nil {
		panic("quorum: crypto/rand failed: " + err.Error())
	}
	u[6] = (u[6] & 0x0f) | 0x40 // version 4
	u[8] = (u[8] & 0x3f) | 0x80 // variant RFC 4122
	return fmt.Sprintf("%08x-%04x-%04x-%04x-%012x",
		u[0:4], u[4:6], u[6:8], u[8:10], u[10:16])
}
