package domain

import "time"

// DefaultLanguage is used when a widget payload omits its language.
const DefaultLanguage = "en"

// Option represents a possible answer for a question.
type Option struct {
	Text        string `json:"text"`
	IsCorrect   bool   `json:"isCorrect"`
	Explanation string `json:"explanation"`
}

// Question models an MCQ question. Prompt and hint may embed math markup,
// which is passed through untouched.
type Question struct {
	ID      string   `json:"id"`
	Prompt  string   `json:"question"`
	Hint    string   `json:"hint"`
	Options []Option `json:"options"`
}

// CorrectIndex returns the index of the first correct option, or -1.
func (q Question) CorrectIndex() int {
	for i, opt := range q.Options {
		if opt.IsCorrect {
			return i
		}
	}
	return -1
}

// QuizData is the content handed to the widget by the assistant.
type QuizData struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Questions   []Question `json:"questions"`
}

// WidgetPayload is the structured content the host passes to the widget.
type WidgetPayload struct {
	Language string   `json:"language"`
	Data     QuizData `json:"data"`
}

// SessionSnapshot is the mutable part of a quiz session in storable form.
// A nil answer means the slot is unanswered.
type SessionSnapshot struct {
	Answers      []*int     `json:"answers"`
	CurrentIndex int        `json:"currentIndex"`
	StartedAt    time.Time  `json:"startedAt"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
}

// SessionRecord is what session stores keep per session ID.
type SessionRecord struct {
	ID       string          `json:"id"`
	Language string          `json:"language"`
	Quiz     QuizData        `json:"quiz"`
	State    SessionSnapshot `json:"state"`
}

// Results is the completion summary of a session.
type Results struct {
	Score         int    `json:"score"`
	Total         int    `json:"totalQuestions"`
	Accuracy      int    `json:"accuracy"`
	ElapsedMS     int64  `json:"elapsedTime"`
	FormattedTime string `json:"formattedTime"`
}

// SessionView is the read model the presentation layer renders from.
// CorrectOption is revealed once the current question is answered or the
// session is completed.
type SessionView struct {
	SessionID      string   `json:"sessionId"`
	Language       string   `json:"language"`
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	CurrentIndex   int      `json:"currentIndex"`
	Total          int      `json:"totalQuestions"`
	Question       Question `json:"question"`
	SelectedOption *int     `json:"selectedOption"`
	CorrectOption  *int     `json:"correctOption,omitempty"`
	CanGoPrevious  bool     `json:"canGoPrevious"`
	CanGoNext      bool     `json:"canGoNext"`
	IsLast         bool     `json:"isLastQuestion"`
	Completed      bool     `json:"completed"`
	AnsweredCount  int      `json:"answeredCount"`
	Progress       int      `json:"progress"`
	ElapsedMS      int64    `json:"elapsedTime"`
	FormattedTime  string   `json:"formattedTime"`
	Results        *Results `json:"results,omitempty"`
}

// SaveBundle is the payload handed to the persistence collaborator.
type SaveBundle struct {
	Language    string     `json:"language"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Questions   []Question `json:"questions"`
	Answers     []*int     `json:"answers,omitempty"`
}

// SavedQuiz is a quiz as returned by a persistence collaborator.
type SavedQuiz struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"ownerId,omitempty"`
	Language  string    `json:"language"`
	Data      QuizData  `json:"data"`
	Answers   []*int    `json:"answers,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Payload converts a saved quiz back into widget input.
func (s SavedQuiz) Payload() WidgetPayload {
	lang := s.Language
	if lang == "" {
		lang = DefaultLanguage
	}
	return WidgetPayload{Language: lang, Data: s.Data}
}

// Principal identifies the caller on authenticated routes. Token is the raw
// bearer token, forwarded to remote collaborators.
type Principal struct {
	Subject string
	Token   string
}

// Clone returns a deep copy of the record's mutable state. Quiz content is
// shared; it is never mutated after a session starts.
func (r SessionRecord) Clone() SessionRecord {
	out := r
	out.State.Answers = make([]*int, len(r.State.Answers))
	for i, a := range r.State.Answers {
		if a != nil {
			v := *a
			out.State.Answers[i] = &v
		}
	}
	if r.State.CompletedAt != nil {
		t := *r.State.CompletedAt
		out.State.CompletedAt = &t
	}
	return out
}
