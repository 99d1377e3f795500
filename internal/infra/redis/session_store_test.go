package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"quiz-widget-service/internal/domain"
)

func TestSessionStoreRoundTrip(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	store := NewSessionStore(newClient(mr), time.Minute)

	two := 2
	completed := time.Date(2024, 11, 22, 9, 5, 0, 0, time.UTC)
	rec := domain.SessionRecord{
		ID:       "s1",
		Language: "en",
		Quiz:     domain.QuizData{Title: "Arithmetic", Questions: []domain.Question{{ID: "q1"}, {ID: "q2"}}},
		State: domain.SessionSnapshot{
			Answers:      []*int{nil, &two},
			CurrentIndex: 1,
			StartedAt:    completed.Add(-time.Minute),
			CompletedAt:  &completed,
		},
	}
	if err := store.Put(ctx, rec); err != nil {
		t.Fatalf("put: %v", err)
	}
	if !mr.Exists("quiz:session:s1") {
		t.Fatalf("expected redis key to be set")
	}
	if ttl := mr.TTL("quiz:session:s1"); ttl != time.Minute {
		t.Fatalf("expected ttl 1m, got %v", ttl)
	}

	got, err := store.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State.Answers[0] != nil || *got.State.Answers[1] != 2 || got.State.CurrentIndex != 1 {
		t.Fatalf("unexpected state %+v", got.State)
	}
	if got.State.CompletedAt == nil || !got.State.CompletedAt.Equal(completed) {
		t.Fatalf("completion time lost: %v", got.State.CompletedAt)
	}

	if err := store.Delete(ctx, "s1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if mr.Exists("quiz:session:s1") {
		t.Fatalf("expected redis key to be removed")
	}
	if _, err := store.Get(ctx, "s1"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSessionStoreExpires(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	store := NewSessionStore(newClient(mr), time.Minute)
	_ = store.Put(ctx, domain.SessionRecord{ID: "s1", Quiz: domain.QuizData{Questions: []domain.Question{{ID: "q1"}}}})

	mr.FastForward(2 * time.Minute)
	if _, err := store.Get(ctx, "s1"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected expired session, got %v", err)
	}
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}
