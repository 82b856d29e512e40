// Package tagutil sanitizes tags into vector-table names.
package tagutil

import (
	"fmt"
	"strings"

	"github.com/jamaly87/vectorindex/internal/models"
)

// separator joins sanitized tag components. It can never be produced by
// escaping a single stripped character (escapes are always three bytes,
// "_XX"), so component boundaries stay unambiguous.
const separator = "__"

// escapePrefix introduces a hex-escaped stripped character.
const escapePrefix = '_'

func isAllowed(r rune) bool {
	switch {
	case r >= 'A' && r <= 'Z':
		return true
	case r >= 'a' && r <= 'z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r == '_' || r == '.' || r == '-':
		return true
	default:
		return false
	}
}

// Sanitize names the vector table for tag. Every byte outside
// [A-Za-z0-9_.\-] is replaced by "_XX" (two uppercase hex digits), rather
// than stripped, so that two distinct tags never sanitize to the same
// string (§3 resolved open question on tag sanitization collisions).
//
// Because the escape character '_' is itself in the allowed alphabet, a
// literal '_' in the input is escaped too ("_5F") so the decoder (not
// implemented here, since this engine only needs the forward direction)
// could unambiguously tell an escape sequence from a literal underscore.
func Sanitize(tag models.Tag) string {
	return escapeComponent(tag.Branch) + separator +
		escapeComponent(tag.Directory) + separator +
		escapeComponent(tag.ArtifactID)
}

// escapeComponent escapes a single tag component in isolation, so the
// separator inserted around it by the caller can never be produced by an
// escape sequence.
func escapeComponent(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 0x80 && isAllowed(r) && r != rune(escapePrefix) {
			b.WriteRune(r)
			continue
		}
		for _, by := range []byte(string(r)) {
			fmt.Fprintf(&b, "%c%02X", escapePrefix, by)
		}
	}
	return b.String()
}
