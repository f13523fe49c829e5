// Package identity derives deterministic identifiers for entities whose
// identity is defined by their attributes rather than assigned by a server.
package identity

import (
	"sort"
	"strings"
)

// Separator joins the two participant ids of a conversation id. User ids
// are token-like and are not expected to contain it.
const Separator = "-"

// ConversationID returns the id of the one-to-one conversation between a
// and b. The result does not depend on argument order.
func ConversationID(a, b string) string {
	return strings.Join(Participants(a, b), Separator)
}

// Participants returns a and b in lexical order.
func Participants(a, b string) []string {
	pair := []string{a, b}
	sort.Strings(pair)
	return pair
}
