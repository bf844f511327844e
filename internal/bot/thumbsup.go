package bot

import "strings"

const thumbsUp = "👍"

// IsThumbsUp reports whether a reaction key approves a proposal. Variation
// selectors and skin tones are ignored; ":+1:" and "+1" are accepted as
// text aliases.
func IsThumbsUp(key string) bool {
	trimmed := strings.ToLower(strings.TrimSpace(key))
	if trimmed == ":+1:" || trimmed == "+1" {
		return true
	}

	bare := strings.Map(func(r rune) rune {
		switch {
		case r == '\uFE0F', r == '\uFE0E':
			return -1
		case r >= 0x1F3FB && r <= 0x1F3FF:
			return -1
		}
		return r
	}, strings.TrimSpace(key))
	return bare == thumbsUp
}
