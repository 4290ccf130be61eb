package auditqueue

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/cellwarden/cellwarden/pkg/audit"
)

// IdempotencyKey derives a stable key for a batch of events from the
// concatenation of their ids, so retried deliveries of the same batch
// collapse to the same key at the SIEM. Exported so sibling queue
// implementations (sqlitequeue) can reuse it.
func IdempotencyKey(events []audit.Event) string { return idempotencyKey(events) }

func idempotencyKey(events []audit.Event) string {
	ids := make([]string, len(events))
	for i, e := range events {
		ids[i] = e.ID
	}
	sum := sha256.Sum256([]byte(strings.Join(ids, ",")))
	return hex.EncodeToString(sum[:])
}
