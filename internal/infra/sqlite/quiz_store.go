package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"quiz-widget-service/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS saved_quizzes (
    id         TEXT PRIMARY KEY,
    owner_id   TEXT NOT NULL,
    language   TEXT NOT NULL DEFAULT 'en',
    data       TEXT NOT NULL,
    answers    TEXT,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS saved_quizzes_owner_created_idx
    ON saved_quizzes (owner_id, created_at DESC);
`

// QuizStore keeps saved quizzes in a single SQLite file.
type QuizStore struct {
	db    *sql.DB
	clock func() time.Time
}

// Open opens (or creates) the database at path and ensures the schema.
func Open(ctx context.Context, path string) (*QuizStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer at a time; SQLite serialises anyway
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &QuizStore{db: db, clock: time.Now}, nil
}

func (s *QuizStore) Close() error {
	return s.db.Close()
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
		Answers:   bundle.Answers,
		CreatedAt: s.clock().UTC(),
	}
	data, err := json.Marshal(saved.Data)
	if err != nil {
		return domain.SavedQuiz{}, fmt.Errorf("marshal quiz: %w", err)
	}
	var answers sql.NullString
	if saved.Answers != nil {
		raw, err := json.Marshal(saved.Answers)
		if err != nil {
			return domain.SavedQuiz{}, fmt.Errorf("marshal answers: %w", err)
		}
		answers = sql.NullString{String: string(raw), Valid: true}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO saved_quizzes (id, owner_id, language, data, answers, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		saved.ID, saved.OwnerID, saved.Language, string(data), answers, saved.CreatedAt.UnixNano(),
	)
	if err != nil {
		return domain.SavedQuiz{}, fmt.Errorf("insert quiz: %w", err)
	}
	return saved, nil
}

func (s *QuizStore) LatestQuiz(ctx context.Context, p domain.Principal) (domain.SavedQuiz, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, language, data, answers, created_at FROM saved_quizzes
		  WHERE owner_id = ? ORDER BY created_at DESC LIMIT 1`, p.Subject)
	return scanQuiz(row)
}

func (s *QuizStore) GetQuiz(ctx context.Context, p domain.Principal, id string) (domain.SavedQuiz, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, language, data, answers, created_at FROM saved_quizzes
		  WHERE id = ? AND owner_id = ?`, id, p.Subject)
	return scanQuiz(row)
}

func scanQuiz(row *sql.Row) (domain.SavedQuiz, error) {
	var (
		q       domain.SavedQuiz
		data    string
		answers sql.NullString
		created int64
	)
	if err := row.Scan(&q.ID, &q.OwnerID, &q.Language, &data, &answers, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.SavedQuiz{}, domain.ErrQuizNotFound
		}
		return domain.SavedQuiz{}, fmt.Errorf("load quiz: %w", err)
	}
	q.CreatedAt = time.Unix(0, created).UTC()
	if err := json.Unmarshal([]byte(data), &q.Data); err != nil {
		return domain.SavedQuiz{}, fmt.Errorf("unmarshal quiz: %w", err)
	}
	if answers.Valid {
		if err := json.Unmarshal([]byte(answers.String), &q.Answers); err != nil {
			return domain.SavedQuiz{}, fmt.Errorf("unmarshal answers: %w", err)
		}
	}
	return q, nil
}
