package app

import (
	"fmt"
	"time"

	"quiz-widget-service/internal/domain"
)

// unanswered marks an empty answer slot.
const unanswered = -1

// Session is the quiz session engine: one user's traversal of a fixed
// question list. It holds no locks; the owner serialises access.
type Session struct {
	questions   []domain.Question
	answers     []int
	current     int
	startedAt   time.Time
	completedAt *time.Time

	now      func() time.Time
	onChange func()
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithClock injects the time source; defaults to time.Now.
func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// WithChangeHook registers fn to run after every successful mutation.
func WithChangeHook(fn func()) SessionOption {
	return func(s *Session) {
		s.onChange = fn
	}
}

// NewSession builds an engine over questions. An empty list is rejected and
// no engine is returned.
func NewSession(questions []domain.Question, opts ...SessionOption) (*Session, error) {
	if len(questions) == 0 {
		return nil, domain.ErrEmptyQuiz
	}
	s := &Session{
		questions: append([]domain.Question(nil), questions...),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.init()
	return s, nil
}

// RestoreSession rebuilds an engine from a stored snapshot. Snapshots that do
// not fit the question list are rejected.
func RestoreSession(questions []domain.Question, snap domain.SessionSnapshot, opts ...SessionOption) (*Session, error) {
	s, err := NewSession(questions, opts...)
	if err != nil {
		return nil, err
	}
	if len(snap.Answers) != len(s.questions) {
		return nil, domain.NewValidationError(domain.KindInconsistent, "answers",
			"snapshot has %d slots for %d questions", len(snap.Answers), len(s.questions))
	}
	if snap.CurrentIndex < 0 || snap.CurrentIndex >= len(s.questions) {
		return nil, domain.NewValidationError(domain.KindOutOfRange, "currentIndex",
			"index %d outside [0, %d)", snap.CurrentIndex, len(s.questions))
	}
	for i, a := range snap.Answers {
		if a == nil {
			continue
		}
		if err := checkOption(s.questions[i], *a); err != nil {
			return nil, err
		}
		s.answers[i] = *a
	}
	s.current = snap.CurrentIndex
	s.startedAt = snap.StartedAt
	if snap.CompletedAt != nil {
		t := *snap.CompletedAt
		s.completedAt = &t
	}
	return s, nil
}

func (s *Session) init() {
	s.answers = make([]int, len(s.questions))
	for i := range s.answers {
		s.answers[i] = unanswered
	}
	s.current = 0
	s.startedAt = s.now()
	s.completedAt = nil
}

func (s *Session) changed() {
	if s.onChange != nil {
		s.onChange()
	}
}

// CurrentQuestion returns the question at the current index.
func (s *Session) CurrentQuestion() domain.Question {
	return s.questions[s.current]
}

// Questions returns a copy of the question list.
func (s *Session) Questions() []domain.Question {
	return append([]domain.Question(nil), s.questions...)
}

func (s *Session) CurrentIndex() int {
	return s.current
}

func (s *Session) TotalQuestions() int {
	return len(s.questions)
}

// CurrentAnswer returns the recorded option for the current question.
func (s *Session) CurrentAnswer() (int, bool) {
	a := s.answers[s.current]
	return a, a != unanswered
}

// IsCurrentAnswered reports whether the current question has an answer.
func (s *Session) IsCurrentAnswered() bool {
	_, ok := s.CurrentAnswer()
	return ok
}

// Answers returns a copy of every slot; nil means unanswered.
func (s *Session) Answers() []*int {
	out := make([]*int, len(s.answers))
	for i, a := range s.answers {
		if a != unanswered {
			v := a
			out[i] = &v
		}
	}
	return out
}

// AnswerCurrent records optionIndex for the current question, replacing any
// previous answer. Position is unchanged.
func (s *Session) AnswerCurrent(optionIndex int) error {
	if err := checkOption(s.questions[s.current], optionIndex); err != nil {
		return err
	}
	s.answers[s.current] = optionIndex
	s.changed()
	return nil
}

func checkOption(q domain.Question, idx int) error {
	if idx < 0 || idx >= len(q.Options) {
		return domain.NewValidationError(domain.KindOutOfRange, "optionIndex",
			"option %d outside [0, %d) for question %q", idx, len(q.Options), q.ID)
	}
	return nil
}

func (s *Session) CanGoPrevious() bool {
	return s.current > 0
}

func (s *Session) CanGoNext() bool {
	return s.current < len(s.questions)-1
}

func (s *Session) IsLastQuestion() bool {
	return s.current == len(s.questions)-1
}

// GoToPrevious moves back one question if possible.
func (s *Session) GoToPrevious() bool {
	if !s.CanGoPrevious() {
		return false
	}
	s.current--
	s.changed()
	return true
}

// GoToNext moves forward one question if possible.
func (s *Session) GoToNext() bool {
	if !s.CanGoNext() {
		return false
	}
	s.current++
	s.changed()
	return true
}

// GoToQuestion jumps to index i; out-of-range indexes are ignored.
func (s *Session) GoToQuestion(i int) bool {
	if i < 0 || i >= len(s.questions) {
		return false
	}
	s.current = i
	s.changed()
	return true
}

// Complete stamps the completion time. Calling it again overwrites the stamp;
// callers complete from the last question after a failed forward move.
func (s *Session) Complete() {
	t := s.now()
	s.completedAt = &t
	s.changed()
}

func (s *Session) IsCompleted() bool {
	return s.completedAt != nil
}

// Reset starts the session over with the same questions.
func (s *Session) Reset() {
	s.init()
	s.changed()
}

func (s *Session) StartedAt() time.Time {
	return s.startedAt
}

// CompletedAt returns the completion time, if any.
func (s *Session) CompletedAt() (time.Time, bool) {
	if s.completedAt == nil {
		return time.Time{}, false
	}
	return *s.completedAt, true
}

// Snapshot captures the mutable state for storage.
func (s *Session) Snapshot() domain.SessionSnapshot {
	snap := domain.SessionSnapshot{
		Answers:      s.Answers(),
		CurrentIndex: s.current,
		StartedAt:    s.startedAt,
	}
	if s.completedAt != nil {
		t := *s.completedAt
		snap.CompletedAt = &t
	}
	return snap
}

// String is used in logs.
func (s *Session) String() string {
	return fmt.Sprintf("session{q=%d/%d answered=%d completed=%v}",
		s.current+1, len(s.questions), s.AnsweredCount(), s.IsCompleted())
}
