package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"quiz-widget-service/internal/domain"
)

// QuizStore keeps saved quizzes in a map, scoped by principal subject.
// Useful for tests/demos and as the default when no database is configured.
type QuizStore struct {
	clock func() time.Time

	mu      sync.RWMutex
	quizzes map[string]domain.SavedQuiz
}

func NewQuizStore() *QuizStore {
	return &QuizStore{
		clock:   time.Now,
		quizzes: make(map[string]domain.SavedQuiz),
	}
}

func (s *QuizStore) SaveQuiz(_ context.Context, p domain.Principal, bundle domain.SaveBundle) (domain.SavedQuiz, error) {
	saved := domain.SavedQuiz{
		ID:       uuid.NewString(),
		OwnerID:  p.Subject,
		Language: bundle.Language,
		Data: domain.QuizData{
			Title:       bundle.Title,
			Description: bundle.Description,
			Questions:   bundle.Questions,
		},
		Answers:   bundle.Answers,
		CreatedAt: s.clock(),
	}
	s.mu.Lock()
	s.quizzes[saved.ID] = saved
	s.mu.Unlock()
	return saved, nil
}

func (s *QuizStore) LatestQuiz(_ context.Context, p domain.Principal) (domain.SavedQuiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest domain.SavedQuiz
	found := false
	for _, q := range s.quizzes {
		if q.OwnerID != p.Subject {
			continue
		}
		if !found || q.CreatedAt.After(latest.CreatedAt) {
			latest = q
			found = true
		}
	}
	if !found {
		return domain.SavedQuiz{}, domain.ErrQuizNotFound
	}
	return latest, nil
}

func (s *QuizStore) GetQuiz(_ context.Context, p domain.Principal, id string) (domain.SavedQuiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quizzes[id]
	if !ok || q.OwnerID != p.Subject {
		return domain.SavedQuiz{}, domain.ErrQuizNotFound
	}
	return q, nil
}
