// Package parser extracts flashcards from markdown. A card starts at a
// "Q:" line and may carry "A:" and "C:" blocks; every block runs until the
// next prefix, a "---" separator or the end of the file.
package parser

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/conorfennell/knoldeck/internal/domain"
)

const separator = "---"

type field int

const (
	fieldNone field = iota
	fieldQuestion
	fieldAnswer
	fieldContext
)

var prefixes = []struct {
	prefix string
	field  field
}{
	{"Q:", fieldQuestion},
	{"A:", fieldAnswer},
	{"C:", fieldContext},
}

// ParseFile reads a markdown file and extracts its cards.
func ParseFile(path string) ([]domain.Flashcard, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return Parse(f)
}

type builder struct {
	cards   []domain.Flashcard
	current domain.Flashcard
	field   field
	lines   []string
}

// flush stores the open block in its field.
func (b *builder) flush() {
	if b.field == fieldNone || len(b.lines) == 0 {
		b.lines = nil
		return
	}
	text := strings.TrimRight(strings.Join(b.lines, "\n"), " \t\n")
	switch b.field {
	case fieldQuestion:
		b.current.Question = text
	case fieldAnswer:
		b.current.Answer = text
	case fieldContext:
		b.current.Context = text
	}
	b.lines = nil
}

// finish closes the current card, keeping it only if it has a question.
func (b *builder) finish() {
	b.flush()
	if b.current.Question != "" {
		b.cards = append(b.cards, b.current)
	}
	b.current = domain.Flashcard{}
	b.field = fieldNone
}

func (b *builder) line(text string) {
	if text == separator {
		b.finish()
		return
	}
	for _, p := range prefixes {
		rest, ok := strings.CutPrefix(text, p.prefix)
		if !ok {
			continue
		}
		if p.field == fieldQuestion && b.field != fieldNone {
			b.finish()
		}
		b.flush()
		b.field = p.field
		b.lines = append(b.lines, strings.TrimPrefix(rest, " "))
		return
	}
	if b.field != fieldNone {
		b.lines = append(b.lines, text)
	}
}

// Parse extracts every card from r.
func Parse(r io.Reader) ([]domain.Flashcard, error) {
	var b builder
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		b.line(scanner.Text())
	}
	b.finish()

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return b.cards, nil
}
