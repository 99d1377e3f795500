package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"quiz-widget-service/internal/domain"
)

// SessionRepository abstracts how quiz sessions are stored (in-memory, Redis, etc).
type SessionRepository interface {
	Put(ctx context.Context, rec domain.SessionRecord) error
	Get(ctx context.Context, id string) (domain.SessionRecord, error)
	Delete(ctx context.Context, id string) error
}

// QuizStore is the persistence collaborator for saved quizzes.
type QuizStore interface {
	SaveQuiz(ctx context.Context, p domain.Principal, bundle domain.SaveBundle) (domain.SavedQuiz, error)
	LatestQuiz(ctx context.Context, p domain.Principal) (domain.SavedQuiz, error)
	GetQuiz(ctx context.Context, p domain.Principal, id string) (domain.SavedQuiz, error)
}

// NavResult reports the outcome of a navigation command.
type NavResult struct {
	View      domain.SessionView `json:"state"`
	Moved     bool               `json:"moved"`
	Completed bool               `json:"completed"`
}

// QuizService contains the quiz session use cases. Each session ID owns an
// isolated engine; nothing mutable is shared between sessions.
type QuizService struct {
	sessions SessionRepository
	quizzes  QuizStore
	rules    domain.Rules
	now      func() time.Time
	newID    func() string

	locks *keyedMutex
	hub   *hub
}

// ServiceOption configures a QuizService.
type ServiceOption func(*QuizService)

// WithRules sets the ingest validation rules.
func WithRules(r domain.Rules) ServiceOption {
	return func(s *QuizService) { s.rules = r }
}

// WithServiceClock is used by tests for deterministic timestamps.
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *QuizService) { s.now = now }
}

// WithIDGenerator overrides session ID generation.
func WithIDGenerator(fn func() string) ServiceOption {
	return func(s *QuizService) { s.newID = fn }
}

func NewQuizService(store SessionRepository, quizzes QuizStore, opts ...ServiceOption) *QuizService {
	s := &QuizService{
		sessions: store,
		quizzes:  quizzes,
		rules:    domain.DefaultRules(),
		now:      time.Now,
		newID:    uuid.NewString,
		locks:    newKeyedMutex(),
		hub:      newHub(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start validates the payload and opens a new session over its questions.
func (s *QuizService) Start(ctx context.Context, payload domain.WidgetPayload) (domain.SessionView, error) {
	if err := s.rules.Validate(payload.Data); err != nil {
		return domain.SessionView{}, err
	}
	session, err := NewSession(payload.Data.Questions, WithClock(s.now))
	if err != nil {
		return domain.SessionView{}, err
	}

	lang := payload.Language
	if lang == "" {
		lang = domain.DefaultLanguage
	}
	rec := domain.SessionRecord{
		ID:       s.newID(),
		Language: lang,
		Quiz:     payload.Data,
		State:    session.Snapshot(),
	}
	if err := s.sessions.Put(ctx, rec); err != nil {
		return domain.SessionView{}, fmt.Errorf("store session: %w", err)
	}
	log.Printf("session %s started: %q, %d questions", rec.ID, rec.Quiz.Title, session.TotalQuestions())
	return viewOf(rec, session), nil
}

// State returns the current view of a session.
func (s *QuizService) State(ctx context.Context, id string) (domain.SessionView, error) {
	var view domain.SessionView
	err := s.withSession(ctx, id, func(rec domain.SessionRecord, session *Session) error {
		view = viewOf(rec, session)
		return nil
	})
	return view, err
}

// Answer records an answer for the current question.
func (s *QuizService) Answer(ctx context.Context, id string, optionIndex int) (domain.SessionView, error) {
	var view domain.SessionView
	err := s.withSession(ctx, id, func(rec domain.SessionRecord, session *Session) error {
		if err := session.AnswerCurrent(optionIndex); err != nil {
			return err
		}
		view = viewOf(rec, session)
		return nil
	})
	return view, err
}

// Previous moves back one question.
func (s *QuizService) Previous(ctx context.Context, id string) (NavResult, error) {
	return s.navigate(ctx, id, func(session *Session) NavResult {
		return NavResult{Moved: session.GoToPrevious()}
	})
}

// Next moves forward; a forward attempt from the last question completes the
// session. Failed moves elsewhere never complete it. An already completed
// session keeps its original completion time.
func (s *QuizService) Next(ctx context.Context, id string) (NavResult, error) {
	return s.navigate(ctx, id, func(session *Session) NavResult {
		if session.GoToNext() {
			return NavResult{Moved: true}
		}
		if session.IsLastQuestion() {
			if !session.IsCompleted() {
				session.Complete()
			}
			return NavResult{Completed: true}
		}
		return NavResult{}
	})
}

// GoTo jumps to question index i when valid.
func (s *QuizService) GoTo(ctx context.Context, id string, i int) (NavResult, error) {
	return s.navigate(ctx, id, func(session *Session) NavResult {
		return NavResult{Moved: session.GoToQuestion(i)}
	})
}

// Retake resets the session over the same questions.
func (s *QuizService) Retake(ctx context.Context, id string) (domain.SessionView, error) {
	var view domain.SessionView
	err := s.withSession(ctx, id, func(rec domain.SessionRecord, session *Session) error {
		session.Reset()
		view = viewOf(rec, session)
		return nil
	})
	return view, err
}

// End drops a session and closes its subscriptions.
func (s *QuizService) End(ctx context.Context, id string) error {
	unlock := s.locks.lock(id)
	defer unlock()
	if _, err := s.sessions.Get(ctx, id); err != nil {
		return err
	}
	if err := s.sessions.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	s.hub.closeAll(id)
	return nil
}

// Save hands the session's quiz (and optionally its answers) to the
// persistence collaborator. A failed save leaves the session untouched.
func (s *QuizService) Save(ctx context.Context, id string, p domain.Principal, includeAnswers bool) (domain.SavedQuiz, error) {
	var bundle domain.SaveBundle
	err := s.withSession(ctx, id, func(rec domain.SessionRecord, session *Session) error {
		bundle = domain.SaveBundle{
			Language:    rec.Language,
			Title:       rec.Quiz.Title,
			Description: rec.Quiz.Description,
			Questions:   session.Questions(),
		}
		if includeAnswers {
			bundle.Answers = session.Answers()
		}
		return nil
	})
	if err != nil {
		return domain.SavedQuiz{}, err
	}

	saved, err := s.quizzes.SaveQuiz(ctx, p, bundle)
	if err != nil {
		log.Printf("session %s: save failed: %v", id, err)
		return domain.SavedQuiz{}, fmt.Errorf("%w: %w", domain.ErrSaveFailed, err)
	}
	log.Printf("session %s: saved as quiz %s", id, saved.ID)
	return saved, nil
}

// Latest returns the principal's most recently saved quiz.
func (s *QuizService) Latest(ctx context.Context, p domain.Principal) (domain.SavedQuiz, error) {
	return s.quizzes.LatestQuiz(ctx, p)
}

// StartSaved opens a new session over a previously saved quiz.
func (s *QuizService) StartSaved(ctx context.Context, p domain.Principal, quizID string) (domain.SessionView, error) {
	saved, err := s.quizzes.GetQuiz(ctx, p, quizID)
	if err != nil {
		return domain.SessionView{}, err
	}
	return s.Start(ctx, saved.Payload())
}

// Subscribe returns a channel that receives the session view after every
// change. The caller must invoke the returned cancel function to avoid leaks.
// Registration happens under the session lock so no change is missed between
// the initial view and the first update.
func (s *QuizService) Subscribe(ctx context.Context, id string) (<-chan domain.SessionView, func(), error) {
	unlock := s.locks.lock(id)
	defer unlock()

	rec, err := s.sessions.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	session, err := RestoreSession(rec.Quiz.Questions, rec.State, WithClock(s.now))
	if err != nil {
		return nil, nil, fmt.Errorf("restore session %s: %w", id, err)
	}
	ch, cancel := s.hub.subscribe(id, viewOf(rec, session))
	return ch, cancel, nil
}

func (s *QuizService) navigate(ctx context.Context, id string, fn func(*Session) NavResult) (NavResult, error) {
	var res NavResult
	err := s.withSession(ctx, id, func(rec domain.SessionRecord, session *Session) error {
		res = fn(session)
		res.View = viewOf(rec, session)
		return nil
	})
	return res, err
}

// withSession loads the engine for id under its lock, runs fn, and persists
// and broadcasts the new state if fn changed anything.
func (s *QuizService) withSession(ctx context.Context, id string, fn func(domain.SessionRecord, *Session) error) error {
	unlock := s.locks.lock(id)
	defer unlock()

	rec, err := s.sessions.Get(ctx, id)
	if err != nil {
		return err
	}
	dirty := false
	session, err := RestoreSession(rec.Quiz.Questions, rec.State,
		WithClock(s.now),
		WithChangeHook(func() { dirty = true }),
	)
	if err != nil {
		return fmt.Errorf("restore session %s: %w", id, err)
	}

	if err := fn(rec, session); err != nil {
		return err
	}
	if !dirty {
		return nil
	}

	rec.State = session.Snapshot()
	if err := s.sessions.Put(ctx, rec); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	s.hub.publish(id, viewOf(rec, session))
	return nil
}

func viewOf(rec domain.SessionRecord, session *Session) domain.SessionView {
	view := session.State()
	view.SessionID = rec.ID
	view.Language = rec.Language
	view.Title = rec.Quiz.Title
	view.Description = rec.Quiz.Description
	return view
}
