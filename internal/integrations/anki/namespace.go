package anki

import "strings"

// DefaultNamespace is the parent deck for everything the bot creates
const DefaultNamespace = "Active::Bot"

// Namespaced nests deck under ns. "Default" and empty names map to ns
// itself; names already under ns are returned unchanged.
func Namespaced(ns, deck string) string {
	if ns == "" {
		ns = DefaultNamespace
	}
	deck = strings.TrimSpace(deck)
	if deck == "" || deck == "Default" || deck == ns {
		return ns
	}
	if strings.HasPrefix(deck, ns+"::") {
		return deck
	}
	return ns + "::" + strings.TrimPrefix(deck, "::")
}

// InNamespace reports whether deck is ns or one of its subdecks
func InNamespace(ns, deck string) bool {
	if ns == "" {
		ns = DefaultNamespace
	}
	return deck == ns || strings.HasPrefix(deck, ns+"::")
}
