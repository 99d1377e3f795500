package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quiz-widget-service/internal/domain"
)

// QuizStore keeps saved quizzes as JSONB rows in Postgres.
type QuizStore struct {
	pool *pgxpool.Pool
}

func NewQuizStore(pool *pgxpool.Pool) *QuizStore {
	return &QuizStore{pool: pool}
}

func (s *QuizStore) SaveQuiz(ctx context.Context, p domain.Principal, bundle domain.SaveBundle) (domain.SavedQuiz, error) {
	saved := domain.SavedQuiz{
		ID:       uuid.NewString(),
		OwnerID:  p.Subject,
		Language: bundle.Language,
		Data: domain.QuizData{
			Title:       bundle.Title,
			Description: bundle.Description,
			Questions:   bundle.Questions,
		},
		Answers: bundle.Answers,
	}
	data, err := json.Marshal(saved.Data)
	if err != nil {
		return domain.SavedQuiz{}, fmt.Errorf("marshal quiz: %w", err)
	}
	var answers []byte
	if saved.Answers != nil {
		if answers, err = json.Marshal(saved.Answers); err != nil {
			return domain.SavedQuiz{}, fmt.Errorf("marshal answers: %w", err)
		}
	}

	err = s.pool.QueryRow(ctx,
		`INSERT INTO saved_quizzes (id, owner_id, language, data, answers)
		 VALUES ($1, $2, $3, $4, $5) RETURNING created_at`,
		saved.ID, saved.OwnerID, saved.Language, data, answers,
	).Scan(&saved.CreatedAt)
	if err != nil {
		return domain.SavedQuiz{}, fmt.Errorf("insert quiz: %w", err)
	}
	return saved, nil
}

func (s *QuizStore) LatestQuiz(ctx context.Context, p domain.Principal) (domain.SavedQuiz, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, owner_id, language, data, answers, created_at
		   FROM saved_quizzes WHERE owner_id=$1
		  ORDER BY created_at DESC LIMIT 1`, p.Subject)
	return scanQuiz(row)
}

func (s *QuizStore) GetQuiz(ctx context.Context, p domain.Principal, id string) (domain.SavedQuiz, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, owner_id, language, data, answers, created_at
		   FROM saved_quizzes WHERE id=$1 AND owner_id=$2`, id, p.Subject)
	return scanQuiz(row)
}

func scanQuiz(row pgx.Row) (domain.SavedQuiz, error) {
	var (
		q         domain.SavedQuiz
		data      []byte
		answers   []byte
		createdAt time.Time
	)
	if err := row.Scan(&q.ID, &q.OwnerID, &q.Language, &data, &answers, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.SavedQuiz{}, domain.ErrQuizNotFound
		}
		return domain.SavedQuiz{}, fmt.Errorf("load quiz: %w", err)
	}
	q.CreatedAt = createdAt
	if err := json.Unmarshal(data, &q.Data); err != nil {
		return domain.SavedQuiz{}, fmt.Errorf("unmarshal quiz: %w", err)
	}
	if len(answers) > 0 {
		if err := json.Unmarshal(answers, &q.Answers); err != nil {
			return domain.SavedQuiz{}, fmt.Errorf("unmarshal answers: %w", err)
		}
	}
	return q, nil
}
