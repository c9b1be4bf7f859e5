package domain

// Flashcard is a question-answer-context entry parsed from a markdown source.
type Flashcard struct {
	Question string
	Answer   string
	Context  string
	Hash     string
}
