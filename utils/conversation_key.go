package utils

import (
	"bytes"

	"github.com/google/uuid"
)

// ConversationKey returns the lookup key for the unordered pair {a, b}.
// ConversationKey(a, b) == ConversationKey(b, a). The key is never stored.
func ConversationKey(a, b uuid.UUID) string {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	return a.String() + ":" + b.String()
}
