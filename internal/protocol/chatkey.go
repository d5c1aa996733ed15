package protocol

import (
	"strings"
)

const chatKeyPrefix = "chat_"

// ChatKey returns the canonical order-independent key for a two-party
// conversation: "chat_<low>_<high>" with the ids sorted lexicographically.
// Both ends of the protocol must sort identically.
func ChatKey(a, b string) string {
	low, high := SortPair(a, b)
	return chatKeyPrefix + low + "_" + high
}

// SortPair returns the two ids in canonical (lexicographic) order.
func SortPair(a, b string) (low, high string) {
	if a > b {
		return b, a
	}
	return a, b
}

// ParseChatKey splits a chatKey back into its two participant ids. The
// separator is the last underscore, so the first id keeping underscores of
// its own still round-trips through ChatKey.
func ParseChatKey(key string) (a, b string, ok bool) {
	rest, found := strings.CutPrefix(key, chatKeyPrefix)
	if !found {
		return "", "", false
	}
	i := strings.LastIndex(rest, "_")
	if i <= 0 || i == len(rest)-1 {
		return "", "", false
	}
	return rest[:i], rest[i+1:], true
}
