// Package xid issues prefixed identifiers for stored records, e.g.
// item-1756646400000000000-a1b2c3d4e5f60718. The nano timestamp keeps IDs
// roughly sortable by creation time; the random tail makes collisions within
// the same nanosecond a non-issue.
package xid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

func New(prefix string) string {
	nano := time.Now().UnixNano()
	tail := make([]byte, 8)
	if _, err := rand.Read(tail); err != nil {
		// Timestamp alone is still unique enough for a single process.
		return fmt.Sprintf("%s-%d", prefix, nano)
	}
	return fmt.Sprintf("%s-%d-%s", prefix, nano, hex.EncodeToString(tail))
}
