package domain

import "fmt"

// Rules describes what an incoming quiz must satisfy before a session is built.
// The engine itself tolerates anything non-empty; these rules belong to the
// ingest boundary.
type Rules struct {
	// OptionsPerQuestion, when positive, requires exactly that many options.
	OptionsPerQuestion int
	// RequireSingleCorrect rejects questions without exactly one correct option.
	RequireSingleCorrect bool
}

// DefaultRules mirrors the tool schema: four options, one of them correct.
func DefaultRules() Rules {
	return Rules{OptionsPerQuestion: 4, RequireSingleCorrect: true}
}

// Validate checks quiz content against the rules.
func (r Rules) Validate(data QuizData) error {
	if len(data.Questions) == 0 {
		return ErrEmptyQuiz
	}

	seen := make(map[string]struct{}, len(data.Questions))
	for i, q := range data.Questions {
		field := fmt.Sprintf("questions[%d]", i)
		if q.ID == "" {
			return NewValidationError(KindMissing, field+".id", "question id is required")
		}
		if _, dup := seen[q.ID]; dup {
			return NewValidationError(KindDuplicate, field+".id", "question id %q is not unique", q.ID)
		}
		seen[q.ID] = struct{}{}

		if len(q.Options) == 0 {
			return NewValidationError(KindOptionCount, field+".options", "question needs at least one option")
		}
		if r.OptionsPerQuestion > 0 && len(q.Options) != r.OptionsPerQuestion {
			return NewValidationError(KindOptionCount, field+".options",
				"expected %d options, got %d", r.OptionsPerQuestion, len(q.Options))
		}
		if r.RequireSingleCorrect {
			correct := 0
			for _, opt := range q.Options {
				if opt.IsCorrect {
					correct++
				}
			}
			if correct != 1 {
				return NewValidationError(KindCorrectOption, field+".options",
					"expected exactly one correct option, got %d", correct)
			}
		}
	}
	return nil
}
