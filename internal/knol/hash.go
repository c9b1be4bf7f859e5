// Package knol derives the content identity of a flashcard. Two cards that
// differ only in case, surrounding whitespace or line endings share a hash,
// so re-importing a reformatted deck keeps review history attached.
package knol

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/conorfennell/knoldeck/internal/domain"
)

func normalizePart(part string) string {
	part = strings.ReplaceAll(part, "\r\n", "\n")
	return strings.TrimSpace(strings.ToLower(part))
}

// Normalize joins the cleaned question, answer and context with newlines.
func Normalize(card domain.Flashcard) string {
	var b strings.Builder
	for i, part := range []string{card.Question, card.Answer, card.Context} {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(normalizePart(part))
	}
	return b.String()
}

// Hash is the hex SHA-256 of the normalized card.
func Hash(card domain.Flashcard) string {
	sum := sha256.Sum256([]byte(Normalize(card)))
	return hex.EncodeToString(sum[:])
}
